package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// ErrNoJSON is returned when no parseable JSON value is found in a text.
var ErrNoJSON = errors.New("no JSON value found")

// ParseJSON finds a JSON value in free text. It tries the first fenced code
// block, then every bracketed value ({...} or [...]) outside the ones
// already decoded, and keeps the longest. It returns the decoded value and
// the raw JSON.
func ParseJSON(text string) (any, string, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if v, err := decode(m[1]); err == nil {
			return v, m[1], nil
		}
	}

	raw, err := outermost(text)
	if err != nil {
		return nil, "", err
	}
	v, err := decode(raw)
	if err != nil {
		return nil, "", errors.Join(ErrNoJSON, err)
	}
	return v, raw, nil
}

func decode(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// outermost decodes a value at each opening bracket in turn. Brackets inside
// a decoded value are skipped; prose brackets that do not start valid JSON
// are passed over.
func outermost(text string) (string, error) {
	var (
		best    string
		lastErr error
	)
	for i := 0; i < len(text); {
		off := strings.IndexAny(text[i:], "{[")
		if off < 0 {
			break
		}
		start := i + off

		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
			lastErr = err
			i = start + 1
			continue
		}
		if len(raw) > len(best) {
			best = string(raw)
		}
		i = start + len(raw)
	}

	if best != "" {
		return best, nil
	}
	if lastErr != nil {
		return "", errors.Join(ErrNoJSON, lastErr)
	}
	return "", ErrNoJSON
}
