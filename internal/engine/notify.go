package engine

import (
	"context"
	"time"
)

// Event describes a finished solve for subscribers.
type Event struct {
	Type           string    `json:"type"`
	RunID          string    `json:"runId"`
	Scenario       string    `json:"scenario"`
	Status         string    `json:"status"`
	Accepted       bool      `json:"accepted"`
	Objective      float64   `json:"objective"`
	Gap            float64   `json:"gap"`
	OpenFacilities []string  `json:"openFacilities"`
	Assigned       int       `json:"assigned"`
	SolvingMs      int64     `json:"solvingMs"`
	Persisted      bool      `json:"persisted"`
	At             time.Time `json:"at"`
}

func newEvent(r Result) Event {
	return Event{
		Type:           EventSolveCompleted,
		RunID:          r.RunID,
		Scenario:       r.Scenario,
		Status:         r.Solution.Status.String(),
		Accepted:       r.Solution.Accepted(),
		Objective:      r.Solution.Objective,
		Gap:            r.Solution.Gap,
		OpenFacilities: r.Solution.OpenFacilities,
		Assigned:       len(r.Solution.Assignments),
		SolvingMs:      r.Solution.SolvingTime.Milliseconds(),
		Persisted:      r.Persisted,
		At:             time.Now().UTC(),
	}
}

// Notifier receives solve events. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Notifiers fans an event out to each member in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, e Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}
