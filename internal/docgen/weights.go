package docgen

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PhaseWeights assigns each phase its progress value. The defaults are
// hand-tuned rather than measured, so deployments may override them from
// a YAML file. Validate enforces the one invariant that matters: progress
// never decreases between phases.
type PhaseWeights struct {
	MapFields    int `yaml:"map_fields"`
	LoadTemplate int `yaml:"load_template"`
	Parse        int `yaml:"parse"`
	FillFields   int `yaml:"fill_fields"`
	Finalize     int `yaml:"finalize"`
	Persist      int `yaml:"persist"`
	Upload       int `yaml:"upload"`
}

// DefaultWeights returns the stock phase table. Validation is always 0
// and completion always 100, so neither is configurable.
func DefaultWeights() PhaseWeights {
	return PhaseWeights{
		MapFields:    20,
		LoadTemplate: 30,
		Parse:        40,
		FillFields:   60,
		Finalize:     80,
		Persist:      90,
		Upload:       95,
	}
}

// LoadWeights reads a weight table from a YAML file. An empty path yields
// the defaults.
func LoadWeights(path string) (PhaseWeights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read phase weights: %w", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parse phase weights: %w", err)
	}
	if err := w.Validate(); err != nil {
		return w, err
	}
	return w, nil
}

// Validate rejects tables that would make progress move backwards.
func (w PhaseWeights) Validate() error {
	seq := []int{w.MapFields, w.LoadTemplate, w.Parse, w.FillFields, w.Finalize, w.Persist, w.Upload}
	prev := 0
	for i, v := range seq {
		if v < prev || v > 100 {
			return fmt.Errorf("phase weights must be non-decreasing within 0..100, got %v at position %d", v, i)
		}
		prev = v
	}
	return nil
}
