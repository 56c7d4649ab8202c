/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package supervise

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so specs can say "2s" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Spec declares one managed service.
type Spec struct {
	Name        string   `yaml:"name"`
	Kind        Kind     `yaml:"kind"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	Env         []string `yaml:"env"`
	Essential   bool     `yaml:"essential"`
	GraceWindow Duration `yaml:"grace_window"`
}

type specFile struct {
	Services []Spec `yaml:"services"`
}

// LoadSpecs reads service declarations from a YAML file.
func LoadSpecs(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}

	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse services file: %w", err)
	}

	for i, spec := range f.Services {
		if spec.Name == "" {
			return nil, fmt.Errorf("service %d has no name", i)
		}
		if spec.Command == "" {
			return nil, fmt.Errorf("service %s has no command", spec.Name)
		}
		switch spec.Kind {
		case KindSink, KindTransport, KindSupervisor, KindControlChannel:
		default:
			return nil, fmt.Errorf("service %s has unknown kind %q", spec.Name, spec.Kind)
		}
	}
	return f.Services, nil
}
