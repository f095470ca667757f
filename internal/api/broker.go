package api

import (
	"context"
	"sync"

	"cflp/internal/engine"
)

// Message is one event pushed to stream subscribers.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// EventBroker fans messages out to subscribers of a scenario.
type EventBroker interface {
	Subscribe(scenario string) chan Message
	Unsubscribe(scenario string, ch chan Message)
	Publish(scenario string, msg Message)
}

// Broker is the in-process EventBroker. Slow subscribers miss messages rather than
// blocking publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Message]struct{} // scenario -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Message]struct{}{}}
}

func (b *Broker) Subscribe(scenario string) chan Message {
	ch := make(chan Message, 8)
	b.mu.Lock()
	if b.subs[scenario] == nil {
		b.subs[scenario] = map[chan Message]struct{}{}
	}
	b.subs[scenario][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(scenario string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[scenario]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, scenario)
	}
	close(ch)
}

func (b *Broker) Publish(scenario string, msg Message) {
	b.mu.Lock()
	for ch := range b.subs[scenario] {
		select {
		case ch <- msg:
		default:
		}
	}
	b.mu.Unlock()
}

// BrokerNotifier publishes engine events to the scenario's subscribers.
type BrokerNotifier struct {
	Broker EventBroker
}

func (n BrokerNotifier) Notify(_ context.Context, e engine.Event) {
	n.Broker.Publish(e.Scenario, Message{Type: e.Type, Data: map[string]any{
		"runId":          e.RunID,
		"status":         e.Status,
		"accepted":       e.Accepted,
		"objective":      e.Objective,
		"gap":            e.Gap,
		"openFacilities": e.OpenFacilities,
		"assigned":       e.Assigned,
		"solvingMs":      e.SolvingMs,
		"persisted":      e.Persisted,
	}})
}
