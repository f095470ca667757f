package model

import (
	"strings"

	"cflp/internal/geo"
)

// Uniform defaults applied when the upstream data carries no per-entity values.
const (
	DefaultCapacity = 5
	DefaultDemand   = 1
)

// DemandPoint is an entity that must be served by exactly one facility (e.g. a practitioner).
type DemandPoint struct {
	ID       string    `json:"id"`
	Location geo.Shape `json:"-"`
	Quantity int       `json:"quantity"`
}

// Facility is a capacitated service location (e.g. a pharmacy).
type Facility struct {
	ID        string    `json:"id"`
	Location  geo.Shape `json:"-"`
	Capacity  *int      `json:"capacity,omitempty"`  // nil -> configured capacity; 0 closes the facility
	FixedCost *float64  `json:"fixedCost,omitempty"` // nil -> configured fixed cost
}

// Assignment maps a demand point id to the facility serving it.
type Assignment map[string]string

// Clone returns an independent copy.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Capacities collects facility capacities keyed by id, falling back to def where none is
// set. An explicit zero is kept.
func Capacities(fs []Facility, def int) map[string]int {
	out := make(map[string]int, len(fs))
	for _, f := range fs {
		c := def
		if f.Capacity != nil {
			c = *f.Capacity
		}
		out[f.ID] = c
	}
	return out
}

// Quantities collects demand quantities keyed by id, falling back to def for
// non-positive values.
func Quantities(ds []DemandPoint, def int) map[string]int {
	out := make(map[string]int, len(ds))
	for _, d := range ds {
		q := d.Quantity
		if q <= 0 {
			q = def
		}
		out[d.ID] = q
	}
	return out
}

// ScenarioKey derives the persistence key from a city/problem description:
// "Berlin, Germany" -> "berlin", "Shibuya, Tokyo, Japan" -> "shibuya".
func ScenarioKey(city string) string {
	head := city
	if i := strings.Index(head, ","); i >= 0 {
		head = head[:i]
	}
	head = strings.ToLower(strings.TrimSpace(head))
	var b strings.Builder
	for _, r := range head {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		case r > 127:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidScenarioKey reports whether key is already in the form ScenarioKey produces. Such
// keys never contain path separators or dots.
func ValidScenarioKey(key string) bool {
	return key != "" && ScenarioKey(key) == key
}
