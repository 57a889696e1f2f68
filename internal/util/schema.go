package util

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ValidationError reports the first argument that does not satisfy a tool
// schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives a JSON object schema from the exported fields of a
// struct. Field names follow the json tag; the description, enum
// (comma separated), minimum and maximum tags are copied into the property.
// A field is required unless it is a pointer or tagged omitempty.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	properties := map[string]any{}
	schema := map[string]any{"type": "object", "properties": properties}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, omitempty, ok := jsonName(f)
		if !ok {
			continue
		}
		properties[name] = property(f)
		if !omitempty && f.Type.Kind() != reflect.Pointer {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonName(f reflect.StructField) (name string, omitempty, ok bool) {
	if !f.IsExported() {
		return "", false, false
	}
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, true
}

func property(f reflect.StructField) map[string]any {
	p := map[string]any{"type": jsonType(f.Type)}
	if d := f.Tag.Get("description"); d != "" {
		p["description"] = d
	}
	if e := f.Tag.Get("enum"); e != "" {
		values := strings.Split(e, ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		p["enum"] = values
	}
	for _, key := range []string{"minimum", "maximum"} {
		if v, err := strconv.ParseFloat(f.Tag.Get(key), 64); err == nil {
			p[key] = v
		}
	}
	return p
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Pointer:
		return jsonType(t.Elem())
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "string"
	}
}

// ValidateParameters checks args against schema: required fields must be
// present, and known fields must match their type, enum and numeric bounds.
// Unknown fields pass through.
func ValidateParameters(args map[string]any, schema map[string]any) error {
	for _, name := range requiredFields(schema) {
		if _, ok := args[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range args {
		p, ok := properties[name].(map[string]any)
		if !ok || value == nil {
			continue
		}
		if msg := checkProperty(p, value); msg != "" {
			return &ValidationError{Field: name, Value: value, Message: msg}
		}
	}
	return nil
}

func checkProperty(p map[string]any, value any) string {
	want, _ := p["type"].(string)
	if !hasType(value, want) {
		return fmt.Sprintf("expected type %s, got %T", want, value)
	}

	if enum := stringList(p["enum"]); len(enum) > 0 {
		s := fmt.Sprint(value)
		found := false
		for _, e := range enum {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("must be one of %s", strings.Join(enum, ", "))
		}
	}

	n, isNum := toFloat(value)
	if !isNum {
		return ""
	}
	if lo, ok := toFloat(p["minimum"]); ok && n < lo {
		return fmt.Sprintf("must be >= %v", lo)
	}
	if hi, ok := toFloat(p["maximum"]); ok && n > hi {
		return fmt.Sprintf("must be <= %v", hi)
	}
	return ""
}

// requiredFields accepts both the []string shape built in Go and the []any
// shape produced by decoding JSON or YAML.
func requiredFields(schema map[string]any) []string {
	return stringList(schema["required"])
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasType(value any, want string) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		// Decoded JSON numbers arrive as float64.
		if f, ok := value.(float64); ok {
			return f == float64(int64(f))
		}
		_, ok := toFloat(value)
		return ok && reflect.TypeOf(value).Kind() != reflect.Float32
	case "number":
		_, ok := toFloat(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
