// Package model is the provider-neutral binding participants and the dynamic
// selector call.
//
// A Model streams Responses for a Request; Complete folds that stream into a
// Completion (plain text or tool calls) under a per-call timeout and turns
// transport failures into core.ModelInvocationError. ScriptedModel replays a
// fixed script for tests, examples and dry runs.
//
// Bindings live in sub-packages: openai (any Chat Completions compatible
// endpoint, DashScope included), anthropic and gemini.
package model
