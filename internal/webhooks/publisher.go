// Package webhooks delivers solve events to an HTTP endpoint with signing and retries.
package webhooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"cflp/internal/metrics"
)

// Delivery is one queued POST.
type Delivery struct {
	ID        string
	EventType string
	Payload   []byte
	Attempts  int
	NextAt    time.Time
}

// Publisher queues events for a Worker. Emit never blocks; when the queue is full the
// event is dropped and counted.
type Publisher struct {
	URL    string
	Secret string
	queue  chan Delivery
}

func NewPublisher(url, secret string, size int) *Publisher {
	if size <= 0 {
		size = 256
	}
	return &Publisher{URL: url, Secret: secret, queue: make(chan Delivery, size)}
}

// Emit wraps data in an envelope and enqueues it.
func (p *Publisher) Emit(eventType string, data any) {
	id := "evt_" + uuid.NewString()
	body, err := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("webhook payload not serializable")
		return
	}
	select {
	case p.queue <- Delivery{ID: id, EventType: eventType, Payload: body}:
	default:
		metrics.WebhookDeliveries.WithLabelValues("dropped").Inc()
		log.Warn().Str("type", eventType).Msg("webhook queue full, event dropped")
	}
}
