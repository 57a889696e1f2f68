package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("no markers <b>", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers <b>", out)

	out, err = RenderTemplate(`{{ .Name | upper }} & {{ default "n/a" .Missing }}`, map[string]any{"Name": "ops"})
	require.NoError(t, err)
	assert.Equal(t, "OPS & n/a", out)

	_, err = RenderTemplate("{{ .Broken ", nil)
	assert.Error(t, err)
}

func TestMustTemplate(t *testing.T) {
	tmpl := MustTemplate("t", `{{ join ", " .IDs }}`)
	var b strings.Builder
	require.NoError(t, tmpl.Execute(&b, map[string]any{"IDs": []string{"a", "b"}}))
	assert.Equal(t, "a, b", b.String())
}

func TestNewID(t *testing.T) {
	a, b := NewID("sess-"), NewID("sess-")
	assert.True(t, strings.HasPrefix(a, "sess-"))
	assert.NotEqual(t, a, b)
}

type commandArgs struct {
	Command string  `json:"command" description:"shell command"`
	Timeout int     `json:"timeout,omitempty" minimum:"30" maximum:"600"`
	Mode    string  `json:"mode,omitempty" enum:"dry_run, apply"`
	Note    *string `json:"note"`
	secret  string
	Skip    string `json:"-"`
}

func TestCreateSchemaTags(t *testing.T) {
	schema := CreateSchema(&commandArgs{})
	props := schema["properties"].(map[string]any)

	assert.Len(t, props, 4)
	assert.Equal(t, []string{"command"}, schema["required"])
	assert.Equal(t, "shell command", props["command"].(map[string]any)["description"])
	assert.Equal(t, 30.0, props["timeout"].(map[string]any)["minimum"])
	assert.Equal(t, []string{"dry_run", "apply"}, props["mode"].(map[string]any)["enum"])
	assert.Equal(t, "string", props["note"].(map[string]any)["type"])
}

func TestValidateParametersBounds(t *testing.T) {
	schema := CreateSchema(commandArgs{})

	tests := []struct {
		name  string
		args  map[string]any
		field string
	}{
		{"valid", map[string]any{"command": "uptime", "timeout": float64(60), "mode": "apply"}, ""},
		{"missing command", map[string]any{"timeout": 60}, "command"},
		{"fractional integer", map[string]any{"command": "uptime", "timeout": 60.5}, "timeout"},
		{"below minimum", map[string]any{"command": "uptime", "timeout": 5}, "timeout"},
		{"above maximum", map[string]any{"command": "uptime", "timeout": 601}, "timeout"},
		{"unknown enum", map[string]any{"command": "uptime", "mode": "yolo"}, "mode"},
		{"nil is accepted", map[string]any{"command": "uptime", "note": nil}, ""},
		{"extra fields pass", map[string]any{"command": "uptime", "other": true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.args, schema)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
