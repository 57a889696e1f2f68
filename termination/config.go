package termination

import (
	"fmt"
)

// Config is the declarative form of a condition tree as it appears in
// pipeline YAML: a list of sentinel tokens and an optional message budget,
// OR-combined.
type Config struct {
	Mentions    []string `json:"mentions,omitempty" yaml:"mentions,omitempty" mapstructure:"mentions"`
	MaxMessages int      `json:"max_messages,omitempty" yaml:"max_messages,omitempty" mapstructure:"max_messages" validate:"gte=0"`
}

// Build turns the config into an Any condition. At least one condition must
// be configured.
func (c Config) Build() (AnyOf, error) {
	var children []Condition
	for _, tok := range c.Mentions {
		if tok == "" {
			return AnyOf{}, fmt.Errorf("termination: empty mention token")
		}
		children = append(children, Mention(tok))
	}
	if c.MaxMessages > 0 {
		children = append(children, Budget(c.MaxMessages))
	}
	if len(children) == 0 {
		return AnyOf{}, fmt.Errorf("termination: no condition configured")
	}
	return Any(children...), nil
}
