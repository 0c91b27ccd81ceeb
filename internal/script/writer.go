package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Write writes a script to a YAML file.
func Write(s *Script, path string) error {
	if s.Version == "" {
		s.Version = Version
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Read reads a script from a YAML file.
func Read(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.Version == "" {
		s.Version = Version
	}
	return &s, nil
}
