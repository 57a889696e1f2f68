package pipeline

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/extract"
	"github.com/hupe1980/taskmesh/termination"
)

// Turn policy kinds.
const (
	PolicyRoundRobin = "round_robin"
	PolicySelector   = "selector"
)

// TurnPolicyConfig selects and tunes the turn policy.
type TurnPolicyConfig struct {
	Kind string `json:"kind" yaml:"kind" mapstructure:"kind" validate:"omitempty,oneof=round_robin selector"`
	// AllowRepeat lets a participant speak twice in a row. Defaults to true.
	AllowRepeat *bool `json:"allow_repeat,omitempty" yaml:"allow_repeat,omitempty" mapstructure:"allow_repeat"`
	// Default is the selector's fallback participant.
	Default string `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
	// Window bounds the transcript tail shown to the selector.
	Window int `json:"window,omitempty" yaml:"window,omitempty" mapstructure:"window" validate:"gte=0"`
}

func (t TurnPolicyConfig) allowRepeat() bool {
	return t.AllowRepeat == nil || *t.AllowRepeat
}

// Config declares one pipeline. It is pure data; New turns it into a
// runnable Pipeline.
type Config struct {
	Name         string                 `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Description  string                 `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Participants []core.ParticipantSpec `json:"participants" yaml:"participants" mapstructure:"participants" validate:"required,min=1,dive"`
	TurnPolicy   TurnPolicyConfig       `json:"turn_policy" yaml:"turn_policy" mapstructure:"turn_policy"`
	Termination  termination.Config     `json:"termination" yaml:"termination" mapstructure:"termination"`
	Extraction   extract.Extractor      `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	// MaxTurns is the hard message budget of a session.
	MaxTurns int `json:"max_turns,omitempty" yaml:"max_turns,omitempty" mapstructure:"max_turns" validate:"gte=0"`
	// Generalist answers when the session yields no usable result. Empty
	// uses a participant named general_assistant if present, else a
	// built-in assistant.
	Generalist *core.ParticipantSpec `json:"generalist,omitempty" yaml:"generalist,omitempty" mapstructure:"generalist"`
	// EmptyResultText replaces an empty or "none" result instead of
	// falling back.
	EmptyResultText string `json:"empty_result_text,omitempty" yaml:"empty_result_text,omitempty" mapstructure:"empty_result_text"`
	// Apology overrides the last-resort reply.
	Apology string `json:"apology,omitempty" yaml:"apology,omitempty" mapstructure:"apology"`
}

var validate = validator.New()

// Validate checks the declarative constraints of c.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("pipeline %q: %w", c.Name, err)
	}
	if c.TurnPolicy.Kind == PolicySelector && c.TurnPolicy.Default == "" {
		return fmt.Errorf("pipeline %q: %w", c.Name, core.ErrNoDefaultParticipant)
	}
	if _, err := c.Termination.Build(); err != nil {
		return fmt.Errorf("pipeline %q: %w", c.Name, err)
	}
	return nil
}

const defaultGeneralistDirective = "You are a helpful assistant. Answer the user's request directly and concisely."

func (c Config) generalist() core.ParticipantSpec {
	if c.Generalist != nil && c.Generalist.ID != "" {
		return *c.Generalist
	}
	for _, p := range c.Participants {
		if p.ID == "general_assistant" {
			// The generalist answers alone and without tools.
			p.Tools = nil
			return p
		}
	}
	return core.ParticipantSpec{ID: "general_assistant", RoleDirective: defaultGeneralistDirective}
}

func isNone(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || strings.EqualFold(t, "none")
}
