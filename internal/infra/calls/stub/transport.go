// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stub is an in-process call transport. It resolves targets from a
// name table, accepts joins without a network and can inject failures.
package stub

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
)

var (
	_ ports.ChatResolver      = (*Transport)(nil)
	_ ports.CallTransport     = (*Transport)(nil)
	_ ports.CallStatusProber  = (*Transport)(nil)
	_ ports.StreamEndNotifier = (*Transport)(nil)
)

// Options configures a Transport.
type Options struct {
	// Names maps @usernames to chat ids. Numeric identifiers always resolve.
	Names map[string]int64
	// Output receives stream-mode media bytes. Nil discards them.
	Output io.Writer
}

// Call is the observable state of one joined call.
type Call struct {
	TargetID int64
	Media    ports.Media
	Paused   bool
	Bytes    int64
	Joins    int
}

type call struct {
	Call
	cancel context.CancelFunc
	done   chan struct{}
}

// Transport implements the call ports in memory.
type Transport struct {
	mu        sync.Mutex
	names     map[string]int64
	output    io.Writer
	calls     map[int64]*call
	joins     map[int64]int
	failJoins map[int64][]error
	inactive  map[int64]bool
	ends      chan ports.StreamEnd
	wg        sync.WaitGroup
}

func New(opts Options) *Transport {
	names := make(map[string]int64, len(opts.Names))
	for k, v := range opts.Names {
		names[strings.ToLower(k)] = v
	}
	return &Transport{
		names:     names,
		output:    opts.Output,
		calls:     make(map[int64]*call),
		joins:     make(map[int64]int),
		failJoins: make(map[int64][]error),
		inactive:  make(map[int64]bool),
		ends:      make(chan ports.StreamEnd, 16),
	}
}

func (t *Transport) ResolveTarget(_ context.Context, identifier string) (int64, error) {
	id := strings.TrimSpace(identifier)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.names[strings.ToLower(id)]; ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s", lifecycle.ErrTargetNotFound, identifier)
}

// FailJoins makes the next len(errs) joins for targetID fail with errs, in
// order.
func (t *Transport) FailJoins(targetID int64, errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failJoins[targetID] = append(t.failJoins[targetID], errs...)
}

func (t *Transport) Join(ctx context.Context, targetID int64, media ports.Media) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	t.joins[targetID]++
	if pending := t.failJoins[targetID]; len(pending) > 0 {
		err := pending[0]
		t.failJoins[targetID] = pending[1:]
		t.mu.Unlock()
		return err
	}
	prev := t.calls[targetID]
	t.mu.Unlock()

	if prev != nil {
		t.stopCall(prev)
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	c := &call{
		Call:   Call{TargetID: targetID, Media: media},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.mu.Lock()
	c.Joins = t.joins[targetID]
	t.calls[targetID] = c
	delete(t.inactive, targetID)
	t.mu.Unlock()

	if !media.IsStream() {
		cancel()
		close(c.done)
		return nil
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(c.done)
		t.drain(drainCtx, c, media.Chunks)
	}()
	return nil
}

func (t *Transport) drain(ctx context.Context, c *call, chunks <-chan []byte) {
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			t.mu.Lock()
			c.Bytes += int64(len(chunk))
			paused := c.Paused
			out := t.output
			if !paused && out != nil {
				_, _ = out.Write(chunk)
			}
			t.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) stopCall(c *call) {
	c.cancel()
	<-c.done
}

// Leave ends the call. Leaving an unknown call succeeds.
func (t *Transport) Leave(_ context.Context, targetID int64) error {
	t.mu.Lock()
	c := t.calls[targetID]
	delete(t.calls, targetID)
	t.mu.Unlock()

	if c != nil {
		t.stopCall(c)
	}
	return nil
}

func (t *Transport) PauseMedia(_ context.Context, targetID int64) error {
	return t.setPaused(targetID, true)
}

func (t *Transport) ResumeMedia(_ context.Context, targetID int64) error {
	return t.setPaused(targetID, false)
}

func (t *Transport) setPaused(targetID int64, paused bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[targetID]
	if !ok {
		return fmt.Errorf("%w: not in call %d", lifecycle.ErrConnectionFailed, targetID)
	}
	c.Paused = paused
	return nil
}

func (t *Transport) CallActive(_ context.Context, targetID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.calls[targetID]
	return ok && !t.inactive[targetID], nil
}

// EndStream simulates the platform dropping the call: the call is reported
// inactive and a StreamEnd is delivered.
func (t *Transport) EndStream(targetID int64, err error) {
	t.mu.Lock()
	t.inactive[targetID] = true
	t.mu.Unlock()
	t.ends <- ports.StreamEnd{TargetID: targetID, Err: err}
}

// MarkInactive makes CallActive report false without a StreamEnd.
func (t *Transport) MarkInactive(targetID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inactive[targetID] = true
}

func (t *Transport) StreamEnded() <-chan ports.StreamEnd {
	return t.ends
}

// Call returns the joined call for targetID.
func (t *Transport) Call(targetID int64) (Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[targetID]
	if !ok {
		return Call{}, false
	}
	return c.Call, true
}

// Joins counts join attempts for targetID, failed ones included.
func (t *Transport) Joins(targetID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joins[targetID]
}

// Close leaves every call.
func (t *Transport) Close() error {
	t.mu.Lock()
	calls := make([]*call, 0, len(t.calls))
	for id, c := range t.calls {
		calls = append(calls, c)
		delete(t.calls, id)
	}
	t.mu.Unlock()
	for _, c := range calls {
		c.cancel()
	}
	t.wg.Wait()
	return nil
}
