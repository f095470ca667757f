package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cflp/internal/metrics"
)

// Worker drains a Publisher and retries failed deliveries with exponential backoff.
type Worker struct {
	Pub         *Publisher
	HTTP        *http.Client
	MaxAttempts int
	Backoff     func(attempts int) time.Duration

	pending []Delivery
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewWorker(p *Publisher, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Worker{
		Pub:         p,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		Backoff:     nextBackoff,
	}
}

// Start runs the delivery loop until Stop.
func (w *Worker) Start() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.processOnce(time.Now())
			}
		}
	}()
}

// Stop ends the loop; undelivered events are discarded.
func (w *Worker) Stop() {
	w.once.Do(func() {
		if w.stop == nil {
			return
		}
		close(w.stop)
		<-w.done
	})
}

// processOnce moves queued events to the pending list and attempts the ones due at now.
func (w *Worker) processOnce(now time.Time) {
	for drained := false; !drained; {
		select {
		case d := <-w.Pub.queue:
			w.pending = append(w.pending, d)
		default:
			drained = true
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kept := w.pending[:0]
	for _, d := range w.pending {
		if d.NextAt.After(now) {
			kept = append(kept, d)
			continue
		}
		err := w.deliver(ctx, d)
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
			continue
		}
		d.Attempts++
		if d.Attempts >= w.MaxAttempts {
			metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("event", d.ID).Int("attempts", d.Attempts).Msg("webhook delivery abandoned")
			continue
		}
		metrics.WebhookDeliveries.WithLabelValues("retry").Inc()
		d.NextAt = now.Add(w.Backoff(d.Attempts - 1))
		kept = append(kept, d)
	}
	w.pending = kept
}

func (w *Worker) deliver(ctx context.Context, d Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Pub.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	req.Header.Set("X-Event-Id", d.ID)
	if w.Pub.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.Pub.Secret, d.Payload))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
