package util

import "github.com/google/uuid"

// NewID returns a random identifier, optionally prefixed ("sess-", "rec-").
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
