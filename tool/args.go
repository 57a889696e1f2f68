package tool

import (
	"fmt"
	"strings"
)

// StringArg returns args[key] as a trimmed string; missing or non-string
// values yield "".
func StringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// IntArg returns args[key] as an int. JSON numbers arrive as float64 and
// are truncated; numeric strings are parsed. Anything else yields def.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return def
}
