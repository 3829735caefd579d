package config

import (
	"fmt"
	"os"

	"github.com/ashureev/dealdesk/internal/domain"
	"gopkg.in/yaml.v3"
)

// Script is the per-deployment dialogue content: who the manager is, what
// today's targets are and which work items get reviewed.
type Script struct {
	Manager    string            `yaml:"manager"`
	UserName   string            `yaml:"user_name"`
	Workload   domain.Workload   `yaml:"workload"`
	Properties []domain.Property `yaml:"properties"`
	Agents     []domain.Agent    `yaml:"agents"`
}

// DefaultScript returns the built-in script used when no file is configured.
func DefaultScript() *Script {
	return &Script{
		Manager:  "your manager",
		Workload: domain.Workload{Calls: 25, Offers: 5, Campaigns: 2},
		Properties: []domain.Property{
			{ID: "prop-1", Address: "1418 Maple Ave", Price: 145000, ARV: 230000, Flags: []string{"vacant"}},
			{ID: "prop-2", Address: "77 Harbor Rd", Price: 212000, ARV: 305000, Flags: []string{"price drop"}},
			{ID: "prop-3", Address: "3021 Birch Ln", Price: 98000, ARV: 175000, Flags: []string{"probate"}},
		},
		Agents: []domain.Agent{
			{ID: "agent-1", Name: "Jordan Lee", Brokerage: "Keller Williams", Phone: "555-0101"},
			{ID: "agent-2", Name: "Priya Shah", Brokerage: "Compass", Phone: "555-0102"},
		},
	}
}

// LoadScript reads the YAML script at path. An empty path or a missing file
// yields DefaultScript. Fields absent from the file keep their defaults.
func LoadScript(path string) (*Script, error) {
	s := DefaultScript()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read script: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return s, nil
}

// Validate checks item ids are present and unique within each list.
func (s *Script) Validate() error {
	seen := make(map[string]bool)
	for _, p := range s.Properties {
		if p.ID == "" {
			return fmt.Errorf("property %q has no id", p.Address)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate property id %q", p.ID)
		}
		seen[p.ID] = true
	}
	seen = make(map[string]bool)
	for _, a := range s.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent %q has no id", a.Name)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
	}
	if s.Workload.Calls < 0 || s.Workload.Offers < 0 || s.Workload.Campaigns < 0 {
		return fmt.Errorf("workload counts cannot be negative")
	}
	return nil
}
