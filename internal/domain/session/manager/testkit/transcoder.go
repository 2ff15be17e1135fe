// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testkit provides controllable transcoders for orchestration tests.
package testkit

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/domain/session/ports"
)

const outputBuffer = 16

// Transcoder is an in-memory ports.Transcoder. Tests push output with
// Emit and simulate a process exit with Exit.
type Transcoder struct {
	Source  model.StreamSource
	Profile model.Profile

	startErr error

	mu      sync.Mutex
	started bool
	ended   bool
	stops   int
	out     chan []byte
}

func newTranscoder(src model.StreamSource, profile model.Profile, startErr error) *Transcoder {
	return &Transcoder{
		Source:   src,
		Profile:  profile,
		startErr: startErr,
		out:      make(chan []byte, outputBuffer),
	}
}

func (t *Transcoder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startErr != nil {
		return t.startErr
	}
	if t.started {
		return errors.New("testkit: transcoder already started")
	}
	t.started = true
	return nil
}

func (t *Transcoder) ReadChunks(context.Context) <-chan []byte {
	return t.out
}

func (t *Transcoder) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.endLocked()
	return nil
}

func (t *Transcoder) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.ended
}

// Emit queues one output chunk. It reports false once the output ended or
// the buffer is full.
func (t *Transcoder) Emit(chunk []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return false
	}
	select {
	case t.out <- chunk:
		return true
	default:
		return false
	}
}

// Exit ends the output as if the process died on its own.
func (t *Transcoder) Exit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLocked()
}

// Stops counts Stop calls.
func (t *Transcoder) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *Transcoder) endLocked() {
	if t.ended {
		return
	}
	t.ended = true
	close(t.out)
}

// Factory is a ports.TranscoderFactory that records every transcoder it builds.
type Factory struct {
	mu        sync.Mutex
	failStart []error
	built     []*Transcoder
}

var _ ports.TranscoderFactory = (*Factory)(nil)

func NewFactory() *Factory {
	return &Factory{}
}

// FailStarts makes the next len(errs) transcoders fail Start with errs, in order.
func (f *Factory) FailStarts(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStart = append(f.failStart, errs...)
}

func (f *Factory) New(src model.StreamSource, profile model.Profile) ports.Transcoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	var startErr error
	if len(f.failStart) > 0 {
		startErr = f.failStart[0]
		f.failStart = f.failStart[1:]
	}
	t := newTranscoder(src, profile, startErr)
	f.built = append(f.built, t)
	return t
}

// Count returns how many transcoders were built.
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

// Last returns the most recently built transcoder, or nil.
func (f *Factory) Last() *Transcoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}
