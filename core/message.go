package core

import "sync"

// Kind distinguishes plain participant answers from tool output.
type Kind int

const (
	// KindText is a participant's plain-text contribution.
	KindText Kind = iota
	// KindToolResult carries the textual result (or error) of a tool call.
	KindToolResult
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Message is a single entry in a session's log. Values are never modified
// after they have been appended.
type Message struct {
	Speaker  string `json:"speaker"`
	Content  string `json:"content"`
	Kind     Kind   `json:"kind"`
	Sequence uint64 `json:"sequence"`
}

// LogView is the read-only surface of a Log handed to turn policies and
// termination conditions.
type LogView interface {
	Len() int
	Last() (Message, bool)
	At(i int) (Message, bool)
	Tail(n int) []Message
	Messages() []Message
}

// Log is the append-only, ordered record of a session's turns.
//
// Contract:
//   - Append assigns Sequence == position in the log
//   - no method rewrites or removes a message once appended (Reset drops the
//     whole log and is only used between independent tasks)
//   - read accessors return copies
type Log struct {
	mu       sync.RWMutex
	messages []Message
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{messages: []Message{}}
}

// Append adds a message to the end of the log and returns the stored value.
func (l *Log) Append(speaker, content string, kind Kind) Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := Message{
		Speaker:  speaker,
		Content:  content,
		Kind:     kind,
		Sequence: uint64(len(l.messages)),
	}
	l.messages = append(l.messages, m)
	return m
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Last returns the most recent message.
func (l *Log) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// At returns the message at position i.
func (l *Log) At(i int) (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.messages) {
		return Message{}, false
	}
	return l.messages[i], true
}

// Tail returns a copy of the last n messages (fewer if the log is shorter).
func (l *Log) Tail(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 {
		return []Message{}
	}
	start := len(l.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(l.messages)-start)
	copy(out, l.messages[start:])
	return out
}

// Messages returns a copy of the full log.
func (l *Log) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Reset drops every message. Only the orchestrator calls this, between tasks.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = []Message{}
}

// LastSpeaker returns the speaker of the most recent message, or "".
func LastSpeaker(v LogView) string {
	if m, ok := v.Last(); ok {
		return m.Speaker
	}
	return ""
}
