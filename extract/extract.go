// Package extract locates the final payload of a finished session in its
// transcript and, for structured pipelines, parses and validates it.
package extract

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/taskmesh/core"
)

// Strategy selects where the payload lives in the transcript.
type Strategy int

const (
	// SentinelStrip takes the terminal message with the sentinel removed.
	// Used when the terminating participant writes the final answer itself.
	SentinelStrip Strategy = iota
	// Penultimate takes the message before the terminal status marker.
	Penultimate
)

func (s Strategy) String() string {
	if s == Penultimate {
		return "penultimate"
	}
	return "sentinel_strip"
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "sentinel_strip", "sentinel-strip", "sentinel":
		*s = SentinelStrip
	case "penultimate", "penultimate_message", "penultimate-message":
		*s = Penultimate
	default:
		return fmt.Errorf("extract: unknown strategy %q", string(b))
	}
	return nil
}

// Result is the outcome of an extraction. Valid is false whenever Err is set.
type Result struct {
	// Text is the payload text after sentinel and fence stripping.
	Text string
	// Payload is the decoded JSON value for structured extractions.
	Payload any
	// Records are the validated records found at RecordsPath.
	Records []map[string]any
	Valid   bool
	Reason  string
	Err     *core.ExtractionError
}

// Extractor is configured per pipeline. The zero value strips nothing and
// returns the terminal message text.
type Extractor struct {
	Strategy Strategy `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	// Sentinel is removed from the payload text.
	Sentinel string `json:"sentinel,omitempty" yaml:"sentinel,omitempty" mapstructure:"sentinel"`
	// StripFences lists code fence languages to unwrap ("markdown").
	StripFences []string `json:"strip_fences,omitempty" yaml:"strip_fences,omitempty" mapstructure:"strip_fences"`
	// Structured requests JSON parsing of the payload.
	Structured bool `json:"structured,omitempty" yaml:"structured,omitempty" mapstructure:"structured"`
	// RecordsPath is a gjson path to the record list. Empty means the
	// payload itself when it is an array.
	RecordsPath string `json:"records_path,omitempty" yaml:"records_path,omitempty" mapstructure:"records_path"`
	// RequiredFields must be present and non-empty on every record.
	RequiredFields []string `json:"required_fields,omitempty" yaml:"required_fields,omitempty" mapstructure:"required_fields"`
}

var validate = validator.New()

// Extract never panics; every miss is reported through Result.
func (e Extractor) Extract(log core.LogView) Result {
	text, err := e.locate(log)
	if err != nil {
		return invalid(err)
	}

	if !e.Structured {
		if text == "" {
			return invalid(&core.ExtractionError{Reason: "empty payload"})
		}
		return Result{Text: text, Valid: true}
	}

	payload, raw, perr := ParseJSON(text)
	if perr != nil {
		return invalid(&core.ExtractionError{Reason: "payload is not JSON", Err: perr})
	}

	records, err := e.records(raw)
	if err != nil {
		return invalid(err)
	}

	return Result{Text: raw, Payload: payload, Records: records, Valid: true}
}

func (e Extractor) locate(log core.LogView) (string, *core.ExtractionError) {
	if log == nil || log.Len() == 0 {
		return "", &core.ExtractionError{Reason: "empty transcript"}
	}

	switch e.Strategy {
	case Penultimate:
		if log.Len() < 2 {
			return "", &core.ExtractionError{Reason: "no message precedes the terminal marker"}
		}
		m, _ := log.At(log.Len() - 2)
		return e.Strip(m.Content), nil
	default:
		m, _ := log.Last()
		return e.Strip(m.Content), nil
	}
}

// Strip removes the sentinel and configured fences from text and trims
// whitespace until nothing changes, so Strip(Strip(x)) == Strip(x).
func (e Extractor) Strip(text string) string {
	for {
		next := e.stripOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

// stripOnce never grows text, which bounds the loop in Strip.
func (e Extractor) stripOnce(text string) string {
	if e.Sentinel != "" {
		for strings.Contains(text, e.Sentinel) {
			text = strings.ReplaceAll(text, e.Sentinel, "")
		}
	}
	text = strings.TrimSpace(text)
	for _, lang := range e.StripFences {
		text = unfence(text, lang)
	}
	return text
}

func unfence(text, lang string) string {
	open := "```" + lang
	if len(text) < len(open)+3 || !strings.HasPrefix(text, open) || !strings.HasSuffix(text, "```") {
		return text
	}
	return strings.TrimSpace(text[len(open) : len(text)-3])
}

func (e Extractor) records(raw string) ([]map[string]any, *core.ExtractionError) {
	if e.RecordsPath == "" && len(e.RequiredFields) == 0 {
		return nil, nil
	}

	list := gjson.Parse(raw)
	if e.RecordsPath != "" {
		if at := list.Get(e.RecordsPath); at.Exists() {
			list = at
		} else if !list.IsArray() {
			return nil, &core.ExtractionError{Reason: fmt.Sprintf("no records at %q", e.RecordsPath)}
		}
	}
	if !list.IsArray() {
		return nil, &core.ExtractionError{Reason: "records are not a list"}
	}

	var (
		out  []map[string]any
		rerr *core.ExtractionError
	)
	list.ForEach(func(key, value gjson.Result) bool {
		rec, ok := value.Value().(map[string]any)
		if !ok {
			rerr = &core.ExtractionError{Reason: fmt.Sprintf("record %d is not an object", key.Int())}
			return false
		}
		for _, field := range e.RequiredFields {
			if err := validate.Var(rec[field], "required"); err != nil {
				rerr = &core.ExtractionError{Reason: fmt.Sprintf("record %d: field %q is required", key.Int(), field), Err: err}
				return false
			}
		}
		out = append(out, rec)
		return true
	})
	if rerr != nil {
		return nil, rerr
	}
	return out, nil
}

func invalid(err *core.ExtractionError) Result {
	return Result{Valid: false, Reason: err.Error(), Err: err}
}
