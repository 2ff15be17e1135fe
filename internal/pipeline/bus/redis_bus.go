// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/metrics"
)

// RedisBus publishes events as JSON over Redis pub/sub so other
// processes can follow session changes. Delivery is best-effort.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus uses client for publishing and subscribing. The caller
// owns the client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, ev lifecycle.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		recordDrop(topic, err)
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	metrics.IncBusPublished("redis", topic)
	return nil
}

// Subscribe returns once Redis confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (ports.Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe topic %q: %w", topic, err)
	}

	s := &redisSub{
		ps:   ps,
		ch:   make(chan lifecycle.Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	go s.forward(topic)
	return s, nil
}

type redisSub struct {
	ps        *redis.PubSub
	ch        chan lifecycle.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSub) forward(topic string) {
	defer close(s.ch)
	logger := log.WithComponent("bus")

	for msg := range s.ps.Channel() {
		var ev lifecycle.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("discarding undecodable event")
			continue
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) C() <-chan lifecycle.Event {
	return s.ch
}

func (s *redisSub) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
