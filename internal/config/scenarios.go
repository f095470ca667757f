package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Override is a partial set of solver options for one scenario. Unset fields inherit
// the global value.
type Override struct {
	FixCost          *float64 `yaml:"fixCost,omitempty"`
	TimeLimit        string   `yaml:"timeLimit,omitempty"`
	GapLimit         *float64 `yaml:"gapLimit,omitempty"`
	FacilityCapacity *int     `yaml:"facilityCapacity,omitempty"`
	DemandQuantity   *int     `yaml:"demandQuantity,omitempty"`
}

// Overrides maps scenario key to its override.
type Overrides map[string]Override

// Validate checks for invalid override values.
func (o Override) Validate() error {
	if o.FixCost != nil && (*o.FixCost < 0 || math.IsNaN(*o.FixCost) || math.IsInf(*o.FixCost, 0)) {
		return fmt.Errorf("fixCost must be >= 0, got %v", *o.FixCost)
	}
	if o.TimeLimit != "" {
		d, err := ParseTimeLimit(o.TimeLimit)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("timeLimit must be positive, got %s", o.TimeLimit)
		}
	}
	if o.GapLimit != nil && (*o.GapLimit < 0 || *o.GapLimit >= 1 || math.IsNaN(*o.GapLimit)) {
		return fmt.Errorf("gapLimit must be in [0,1), got %v", *o.GapLimit)
	}
	if o.FacilityCapacity != nil && *o.FacilityCapacity <= 0 {
		return fmt.Errorf("facilityCapacity must be positive, got %d", *o.FacilityCapacity)
	}
	if o.DemandQuantity != nil && *o.DemandQuantity <= 0 {
		return fmt.Errorf("demandQuantity must be positive, got %d", *o.DemandQuantity)
	}
	return nil
}

// Apply layers the override on top of s.
func (o Override) Apply(s Solver) Solver {
	if o.FixCost != nil {
		s.FixCost = *o.FixCost
	}
	if o.TimeLimit != "" {
		if d, err := ParseTimeLimit(o.TimeLimit); err == nil {
			s.TimeLimit = d
		}
	}
	if o.GapLimit != nil {
		s.GapLimit = *o.GapLimit
	}
	if o.FacilityCapacity != nil {
		s.FacilityCapacity = *o.FacilityCapacity
	}
	if o.DemandQuantity != nil {
		s.DemandQuantity = *o.DemandQuantity
	}
	return s
}

// ParseOverrides parses a YAML document mapping scenario key to override. Entries that
// fail to decode or validate are skipped with a warning; only a malformed document is an
// error.
//
//	berlin:
//	  fixCost: 50
//	  timeLimit: 10m
func ParseOverrides(data []byte) (Overrides, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse scenario overrides: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Overrides, len(raw))
	for _, key := range keys {
		node := raw[key]
		var o Override
		if err := node.Decode(&o); err != nil {
			log.Warn().Str("scenario", key).Err(err).Msg("failed to parse scenario override, skipping")
			continue
		}
		if err := o.Validate(); err != nil {
			log.Warn().Str("scenario", key).Err(err).Msg("invalid scenario override, skipping")
			continue
		}
		out[key] = o
	}
	return out, nil
}

// LoadOverrides reads and parses path. A missing file yields no overrides.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Overrides{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scenario overrides: %w", err)
	}
	return ParseOverrides(data)
}
