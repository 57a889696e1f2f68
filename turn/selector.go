package turn

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/samber/lo"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/model"
)

// DefaultSelectorWindow is the number of trailing messages shown to the
// selecting model.
const DefaultSelectorWindow = 10

const selectorPrompt = `You are coordinating a team of participants working on one task.

Participants:
{{ .Roles }}

Task:
{{ .Task }}
{{ if .History }}
Conversation so far:
{{ range .History }}{{ .Speaker }}: {{ .Content }}
{{ end }}{{ end }}
Pick the participant that should speak next from: {{ join ", " .Candidates }}.
Respond with ONLY the participant id, nothing else.`

var selectorTemplate = util.MustTemplate("selector", selectorPrompt)

// SelectorOptions configure a Selector.
type SelectorOptions struct {
	// Window bounds the transcript tail included in the selection prompt.
	Window int
	// Timeout bounds each selection call. Zero disables the bound.
	Timeout time.Duration
	// AllowRepeat keeps the previous speaker among the candidates.
	AllowRepeat bool
	// Template overrides the built-in selection prompt. It receives Roles,
	// Task, History and Candidates.
	Template *template.Template
	Logger   logging.Logger
}

// Selector asks a model which participant should speak next. Answers are
// matched against the registry; anything that does not resolve to exactly
// one registered id falls back to the default participant.
type Selector struct {
	registry  *core.Registry
	model     model.Model
	defaultID string
	opts      SelectorOptions
	log       *logging.MeshLogger
}

// NewSelector creates a dynamic-selection policy. defaultID must be registered.
func NewSelector(registry *core.Registry, m model.Model, defaultID string, optFns ...func(o *SelectorOptions)) (*Selector, error) {
	if !registry.Has(defaultID) {
		return nil, fmt.Errorf("%w: %q", core.ErrNoDefaultParticipant, defaultID)
	}

	opts := SelectorOptions{
		Window:      DefaultSelectorWindow,
		Timeout:     30 * time.Second,
		AllowRepeat: true,
		Template:    selectorTemplate,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Selector{
		registry:  registry,
		model:     m,
		defaultID: defaultID,
		opts:      opts,
		log:       logging.NewMeshLogger(opts.Logger).WithComponent("turn.selector"),
	}, nil
}

// Default returns the fallback participant id.
func (s *Selector) Default() string { return s.defaultID }

// Next implements Policy.
func (s *Selector) Next(ctx context.Context, task string, log core.LogView) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.CancellationError{Err: err}
	}

	candidates := s.registry.IDs()
	var excluded []string
	if !s.opts.AllowRepeat && log != nil {
		if last := core.LastSpeaker(log); last != "" && len(candidates) > 1 {
			excluded = append(excluded, last)
			candidates = lo.Without(candidates, last)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	prompt, err := s.render(task, log, candidates, excluded)
	if err != nil {
		s.log.Warn("turn.selector.prompt_failed", "error", err.Error())
		return s.defaultID, nil
	}

	c, err := model.Complete(ctx, s.model, model.Request{
		Instructions: prompt,
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, "Who speaks next?")},
	}, s.opts.Timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &core.CancellationError{Err: ctxErr}
		}
		s.log.Warn("turn.selector.model_failed", "error", err.Error(), "default", s.defaultID)
		return s.defaultID, nil
	}

	id, ok := ParseSelection(c.Text, candidates)
	if !ok {
		s.log.Info("turn.selector.fallback", "answer", c.Text, "default", s.defaultID)
		return s.defaultID, nil
	}

	s.log.Debug("turn.selected", "participant", id)
	return id, nil
}

// Reset implements Policy. The selector keeps no per-session state.
func (s *Selector) Reset() {}

func (s *Selector) render(task string, log core.LogView, candidates, excluded []string) (string, error) {
	var history []core.Message
	if log != nil {
		history = lo.Filter(log.Tail(s.opts.Window), func(m core.Message, _ int) bool {
			return m.Kind == core.KindText
		})
	}

	var b strings.Builder
	err := s.opts.Template.Execute(&b, map[string]any{
		"Roles":      s.registry.Descriptions(excluded...),
		"Task":       task,
		"History":    history,
		"Candidates": candidates,
	})
	return b.String(), err
}

// ParseSelection resolves a model answer to one of candidates: an exact
// match, then a case-insensitive match, then a single unambiguous mention
// inside a longer answer. Empty, unknown and ambiguous answers do not resolve.
func ParseSelection(answer string, candidates []string) (string, bool) {
	answer = strings.Trim(strings.TrimSpace(answer), "`\"'.*")
	if answer == "" {
		return "", false
	}

	if lo.Contains(candidates, answer) {
		return answer, true
	}

	for _, c := range candidates {
		if strings.EqualFold(c, answer) {
			return c, true
		}
	}

	lower := strings.ToLower(answer)
	mentioned := lo.Filter(candidates, func(c string, _ int) bool {
		return strings.Contains(lower, strings.ToLower(c))
	})
	// Drop ids that only matched as part of a longer mentioned id.
	mentioned = lo.Filter(mentioned, func(c string, _ int) bool {
		return !lo.ContainsBy(mentioned, func(other string) bool {
			return other != c && strings.Contains(strings.ToLower(other), strings.ToLower(c))
		})
	})
	if len(mentioned) == 1 {
		return mentioned[0], true
	}

	return "", false
}
