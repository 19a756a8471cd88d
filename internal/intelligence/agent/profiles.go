// Package agent implements the model-invocation layer on the Gemini API.
// Every analysis is an opaque call: typed input in, typed output or error
// out. Retry, rate limiting and per-call timeouts live here so the pipeline
// stays free of model concerns.
package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Phase names used to look up model profiles.
const (
	PhaseSummary   = "summary"
	PhaseContact   = "contact"
	PhaseNarrative = "narrative"
	PhaseDeal      = "deal"
)

// Profile selects the model and sampling settings for one pipeline phase.
type Profile struct {
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"`
}

// Profiles maps pipeline phases to model profiles. Phases without an entry
// fall back to the default profile.
type Profiles struct {
	Default Profile            `yaml:"default"`
	Phases  map[string]Profile `yaml:"phases"`
}

// DefaultProfiles is used when no profiles file is configured.
func DefaultProfiles() Profiles {
	return Profiles{
		Default: Profile{Model: "gemini-2.0-flash"},
	}
}

// LoadProfiles reads a YAML profiles file. A missing path is not an error;
// the defaults apply.
func LoadProfiles(path string) (Profiles, error) {
	if path == "" {
		return DefaultProfiles(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProfiles(), nil
		}
		return Profiles{}, fmt.Errorf("read model profiles: %w", err)
	}

	var profiles Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return Profiles{}, fmt.Errorf("parse model profiles: %w", err)
	}
	if profiles.Default.Model == "" {
		profiles.Default.Model = DefaultProfiles().Default.Model
	}
	return profiles, nil
}

// For resolves the profile for a phase, inheriting unset fields from the
// default.
func (p Profiles) For(phase string) Profile {
	profile, ok := p.Phases[phase]
	if !ok {
		return p.Default
	}
	if profile.Model == "" {
		profile.Model = p.Default.Model
	}
	if profile.Temperature == nil {
		profile.Temperature = p.Default.Temperature
	}
	return profile
}
