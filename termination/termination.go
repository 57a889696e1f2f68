// Package termination decides when a session is done. Conditions are pure
// reads of the transcript and are evaluated after every appended message.
package termination

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// Reason classifies why a condition was met.
type Reason int

const (
	// ReasonNone means the condition is not met.
	ReasonNone Reason = iota
	// ReasonMention means a sentinel token appeared in the latest message.
	ReasonMention
	// ReasonBudget means the message budget was reached.
	ReasonBudget
	// ReasonCancelled means the caller requested cancellation.
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonMention:
		return "mention"
	case ReasonBudget:
		return "budget"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Status maps a met verdict to the session status it ends in.
func (r Reason) Status() core.Status {
	switch r {
	case ReasonMention:
		return core.StatusTerminated
	case ReasonBudget:
		return core.StatusBudgetExceeded
	case ReasonCancelled:
		return core.StatusCancelled
	default:
		return core.StatusRunning
	}
}

// Verdict is the outcome of a Check.
type Verdict struct {
	Met    bool
	Reason Reason
	Detail string
}

var notMet = Verdict{}

// Condition is a pure predicate over the transcript.
type Condition interface {
	Check(log core.LogView) Verdict
	String() string
}

// TextMention is met when the latest message is participant text containing
// Token (case-sensitive). Tool results never match.
type TextMention struct {
	Token string
}

// Mention returns a TextMention condition.
func Mention(token string) TextMention { return TextMention{Token: token} }

// Check implements Condition.
func (t TextMention) Check(log core.LogView) Verdict {
	if t.Token == "" {
		return notMet
	}
	last, ok := log.Last()
	if !ok || last.Kind != core.KindText || !strings.Contains(last.Content, t.Token) {
		return notMet
	}
	return Verdict{Met: true, Reason: ReasonMention, Detail: t.Token}
}

func (t TextMention) String() string { return fmt.Sprintf("TextMention(%q)", t.Token) }

// MaxMessages is met once the transcript holds at least N messages.
type MaxMessages struct {
	N int
}

// Budget returns a MaxMessages condition.
func Budget(n int) MaxMessages { return MaxMessages{N: n} }

// Check implements Condition.
func (m MaxMessages) Check(log core.LogView) Verdict {
	if m.N <= 0 || log.Len() < m.N {
		return notMet
	}
	return Verdict{Met: true, Reason: ReasonBudget, Detail: fmt.Sprintf("%d messages", log.Len())}
}

func (m MaxMessages) String() string { return fmt.Sprintf("MaxMessages(%d)", m.N) }

// ExternalSignal is met once its channel is closed.
type ExternalSignal struct {
	done <-chan struct{}
}

// External returns a condition that is met once ctx is done.
func External(ctx context.Context) ExternalSignal { return ExternalSignal{done: ctx.Done()} }

// Signal returns a condition that is met once done is closed.
func Signal(done <-chan struct{}) ExternalSignal { return ExternalSignal{done: done} }

// Check implements Condition. It never blocks.
func (e ExternalSignal) Check(core.LogView) Verdict {
	if e.done == nil {
		return notMet
	}
	select {
	case <-e.done:
		return Verdict{Met: true, Reason: ReasonCancelled, Detail: "external signal"}
	default:
		return notMet
	}
}

func (e ExternalSignal) String() string { return "External()" }

// AnyOf is met when any child is met. A cancellation verdict takes
// precedence; otherwise the first met child in order wins.
type AnyOf struct {
	Children []Condition
}

// Any composes conditions with OR.
func Any(children ...Condition) AnyOf { return AnyOf{Children: children} }

// Check implements Condition.
func (a AnyOf) Check(log core.LogView) Verdict {
	first := notMet
	for _, c := range a.Children {
		v := c.Check(log)
		if !v.Met {
			continue
		}
		if v.Reason == ReasonCancelled {
			return v
		}
		if !first.Met {
			first = v
		}
	}
	return first
}

func (a AnyOf) String() string {
	parts := make([]string, len(a.Children))
	for i, c := range a.Children {
		parts[i] = c.String()
	}
	return "Any(" + strings.Join(parts, ", ") + ")"
}

// With returns a copy of a extended by extra conditions.
func (a AnyOf) With(extra ...Condition) AnyOf {
	children := make([]Condition, 0, len(a.Children)+len(extra))
	children = append(children, a.Children...)
	children = append(children, extra...)
	return AnyOf{Children: children}
}
