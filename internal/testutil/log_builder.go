package testutil

import (
	"github.com/hupe1980/taskmesh/core"
)

// LogBuilder provides a fluent helper for constructing session logs.
// Example:
//
//	l := NewLogBuilder().Say("analyst", "ticket 1").Tool("executor", "exit code: 0").Build()
//
// Messages are appended in call order.
type LogBuilder struct {
	entries []core.Message
	speaker string
}

// NewLogBuilder creates a builder whose default speaker is "p".
func NewLogBuilder() *LogBuilder { return &LogBuilder{speaker: "p"} }

// Speaker sets the speaker used by Text (chainable).
func (b *LogBuilder) Speaker(s string) *LogBuilder { b.speaker = s; return b }

// Say appends a text message by speaker (chainable).
func (b *LogBuilder) Say(speaker, content string) *LogBuilder {
	b.entries = append(b.entries, core.Message{Speaker: speaker, Content: content, Kind: core.KindText})
	return b
}

// Text appends text messages by the current speaker (chainable).
func (b *LogBuilder) Text(contents ...string) *LogBuilder {
	for _, c := range contents {
		b.Say(b.speaker, c)
	}
	return b
}

// Rotate appends text messages with speakers taken in turn from speakers
// (chainable).
func (b *LogBuilder) Rotate(speakers []string, contents ...string) *LogBuilder {
	for i, c := range contents {
		b.Say(speakers[i%len(speakers)], c)
	}
	return b
}

// Tool appends a tool result attributed to speaker (chainable).
func (b *LogBuilder) Tool(speaker, content string) *LogBuilder {
	b.entries = append(b.entries, core.Message{Speaker: speaker, Content: content, Kind: core.KindToolResult})
	return b
}

// Build returns a fresh log holding the appended messages.
func (b *LogBuilder) Build() *core.Log {
	l := core.NewLog()
	for _, m := range b.entries {
		l.Append(m.Speaker, m.Content, m.Kind)
	}
	return l
}
