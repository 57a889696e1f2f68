// Package core holds the data model shared by every taskmesh package: the
// append-only message log, participant specs and their registry, session
// status, the turn budget, model content parts and the typed error taxonomy.
//
// Nothing in core performs I/O. Higher layers (turn, participant,
// termination, extract, orchestrator) depend on it; it depends on nothing
// else in the module.
package core
