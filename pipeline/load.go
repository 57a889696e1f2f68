package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a pipeline definition file.
type File struct {
	Pipelines []Config `yaml:"pipelines"`
}

// LoadFile reads pipeline definitions from a YAML file.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipelines: %w", err)
	}
	cfgs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfgs, nil
}

// Parse decodes and validates pipeline definitions. Unknown keys are errors.
func Parse(data []byte) ([]Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode pipelines: %w", err)
	}
	if len(f.Pipelines) == 0 {
		return nil, errors.New("no pipelines defined")
	}

	seen := map[string]bool{}
	for _, c := range f.Pipelines {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate pipeline %q", c.Name)
		}
		seen[c.Name] = true
	}
	return f.Pipelines, nil
}

// Merge overlays extra on top of base by name.
func Merge(base map[string]Config, extra ...Config) map[string]Config {
	out := make(map[string]Config, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for _, c := range extra {
		out[c.Name] = c
	}
	return out
}
