package core

import (
	"fmt"
	"slices"
	"strings"
)

// DefaultMaxToolIterations bounds the tool loop when a spec leaves it unset.
const DefaultMaxToolIterations = 5

// ParticipantSpec describes one role-scoped participant as data. The same
// generic executor runs every participant; behaviour differs only through
// these fields.
type ParticipantSpec struct {
	ID                string   `json:"id" yaml:"id" mapstructure:"id" validate:"required"`
	RoleDirective     string   `json:"role_directive" yaml:"role_directive" mapstructure:"role_directive"`
	Description       string   `json:"description" yaml:"description" mapstructure:"description"`
	Tools             []string `json:"tools,omitempty" yaml:"tools,omitempty" mapstructure:"tools"`
	MaxToolIterations int      `json:"max_tool_iterations,omitempty" yaml:"max_tool_iterations,omitempty" mapstructure:"max_tool_iterations" validate:"gte=0"`
	// Model names an alternative model binding; empty uses the default.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
}

// ToolIterations returns the effective tool loop bound.
func (p ParticipantSpec) ToolIterations() int {
	if p.MaxToolIterations <= 0 {
		return DefaultMaxToolIterations
	}
	return p.MaxToolIterations
}

// Registry is an ordered, read-only set of participant specs. It is built
// once per pipeline and shared by every session of that pipeline.
type Registry struct {
	order []string
	specs map[string]ParticipantSpec
}

// NewRegistry validates ids (non-empty, unique) and freezes the set.
func NewRegistry(specs ...ParticipantSpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyRegistry
	}
	r := &Registry{
		order: make([]string, 0, len(specs)),
		specs: make(map[string]ParticipantSpec, len(specs)),
	}
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("participant id must not be empty")
		}
		if _, dup := r.specs[s.ID]; dup {
			return nil, fmt.Errorf("duplicate participant id %q", s.ID)
		}
		s.Tools = append([]string(nil), s.Tools...)
		r.specs[s.ID] = s
		r.order = append(r.order, s.ID)
	}
	return r, nil
}

// Get looks up a spec by id.
func (r *Registry) Get(id string) (ParticipantSpec, bool) {
	s, ok := r.specs[id]
	return s, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.specs[id]
	return ok
}

// IDs returns participant ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Specs returns the specs in registration order.
func (r *Registry) Specs() []ParticipantSpec {
	out := make([]ParticipantSpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.specs[id])
	}
	return out
}

// Len returns the number of participants.
func (r *Registry) Len() int { return len(r.order) }

// Descriptions renders one "id : description" line per participant, in
// registration order, skipping ids listed in exclude.
func (r *Registry) Descriptions(exclude ...string) string {
	var b strings.Builder
	for _, id := range r.order {
		if slices.Contains(exclude, id) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(id)
		b.WriteString(" : ")
		b.WriteString(r.specs[id].Description)
	}
	return b.String()
}
