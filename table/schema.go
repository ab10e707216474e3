package table

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema is the root of a table schema file.
type Schema struct {
	Tables []Definition `yaml:"tables"`
}

// Load reads and validates a YAML schema file.
func Load(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML schema bytes.
func Parse(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parse schema: %w", err)
	}
	seen := make(map[string]bool, len(s.Tables))
	for _, def := range s.Tables {
		if err := def.Validate(); err != nil {
			return Schema{}, err
		}
		if seen[def.Name] {
			return Schema{}, fmt.Errorf("duplicate table %s in schema", def.Name)
		}
		seen[def.Name] = true
	}
	return s, nil
}

// Table returns the definition with the given name.
func (s Schema) Table(name string) (Definition, error) {
	for _, def := range s.Tables {
		if def.Name == name {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("table %s not found in schema", name)
}
