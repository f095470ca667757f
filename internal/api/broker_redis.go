package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every API replica sees
// every solve.
type RedisBroker struct {
	rdb  *redis.Client
	mu   sync.Mutex
	subs map[chan Message]*redis.PubSub
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb, subs: map[chan Message]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe(scenario string) chan Message {
	ch := make(chan Message, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(scenario))
	// wait for the subscription confirmation so an immediate Publish is not lost
	if _, err := ps.Receive(ctx); err != nil {
		log.Warn().Err(err).Str("scenario", scenario).Msg("redis subscribe failed")
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		for msg := range ps.Channel() {
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				continue
			}
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				select {
				case ch <- m:
				default:
				}
			}
			b.mu.Unlock()
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(scenario string, ch chan Message) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if !ok {
		return
	}
	_ = ps.Close()
	close(ch)
}

func (b *RedisBroker) Publish(scenario string, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(scenario), data).Err(); err != nil {
		log.Warn().Err(err).Str("scenario", scenario).Msg("redis publish failed")
	}
}

func (b *RedisBroker) chanName(scenario string) string { return "cflp:events:" + scenario }
