package opt

import (
	"sync"
	"time"
)

// Metrics summarizes one solve for introspection endpoints.
type Metrics struct {
	Status         string        `json:"status"`
	Objective      float64       `json:"objective"`
	Bound          float64       `json:"bound"`
	Gap            float64       `json:"gap"`
	Nodes          int           `json:"nodes"`
	SolvingTime    time.Duration `json:"solvingTime"`
	OpenFacilities int           `json:"openFacilities"`
	Assigned       int           `json:"assigned"`
	Sentinel       int           `json:"sentinel"`
	Seeded         bool          `json:"seeded"`
}

// MetricsOf summarizes a solution.
func MetricsOf(s Solution) Metrics {
	return Metrics{
		Status: s.Status.String(), Objective: s.Objective, Bound: s.Bound, Gap: s.Gap,
		Nodes: s.Nodes, SolvingTime: s.SolvingTime, OpenFacilities: len(s.OpenFacilities),
		Assigned: len(s.Assignments), Sentinel: len(s.SentinelAssignments), Seeded: s.Seeded,
	}
}

type key struct {
	Scenario string
	Backend  string
}

var (
	mu    sync.Mutex
	store = map[key]Metrics{}
)

func RecordMetrics(scenario, backend string, m Metrics) {
	mu.Lock()
	store[key{Scenario: scenario, Backend: backend}] = m
	mu.Unlock()
}

func GetMetrics(scenario string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range store {
		if k.Scenario == scenario {
			out[k.Backend] = v
		}
	}
	return out
}
