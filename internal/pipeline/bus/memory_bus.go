// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
	"github.com/ManuGH/tgstream/internal/metrics"
)

// MemoryBus is an in-process pub/sub. A publish blocks on a full
// subscriber until ctx is done, then the event is dropped for every
// remaining subscriber.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, ev lifecycle.Event) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}

	// The read lock is held across sends so Close cannot close a channel
	// under an in-flight publish.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		recordDrop(topic, ErrClosed)
		return ErrClosed
	}
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			recordDrop(topic, ctx.Err())
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	metrics.IncBusPublished("memory", topic)
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (ports.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memSub{b: b, topic: topic, ch: make(chan lifecycle.Event, subscriberBuffer)}
	b.subs[topic] = append(b.subs[topic], s)
	return s, nil
}

// Close closes every subscription channel. Further publishes fail.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subs {
		for _, s := range subs {
			s.closeLocked()
		}
		delete(b.subs, topic)
	}
	return nil
}

type memSub struct {
	b      *MemoryBus
	topic  string
	ch     chan lifecycle.Event
	closed bool
}

func (s *memSub) C() <-chan lifecycle.Event {
	return s.ch
}

func (s *memSub) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.closed {
		return nil
	}
	lst := s.b.subs[s.topic]
	out := lst[:0]
	for _, other := range lst {
		if other != s {
			out = append(out, other)
		}
	}
	if len(out) == 0 {
		delete(s.b.subs, s.topic)
	} else {
		s.b.subs[s.topic] = out
	}
	s.closeLocked()
	return nil
}

func (s *memSub) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
