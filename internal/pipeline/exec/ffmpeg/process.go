// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
	"github.com/ManuGH/tgstream/internal/domain/session/model"
	"github.com/ManuGH/tgstream/internal/log"
	"github.com/ManuGH/tgstream/internal/procgroup"
)

const (
	DefaultBinPath   = "ffmpeg"
	DefaultStopGrace = 5 * time.Second
	DefaultChunkSize = 64 * 1024

	stderrLines = 50
)

var (
	startTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_ffmpeg_start_total",
		Help: "Total number of ffmpeg process starts",
	}, []string{"result"})

	exitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstream_ffmpeg_exit_total",
		Help: "Total number of ffmpeg process exits",
	}, []string{"reason"})

	decodeErrorTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgstream_ffmpeg_decode_error_total",
		Help: "Corrupt packet or decode error lines reported by ffmpeg",
	})
)

// Config controls how transcoder processes are launched.
type Config struct {
	BinPath   string
	Threads   int
	StopGrace time.Duration
	ChunkSize int
}

func (c Config) withDefaults() Config {
	if c.BinPath == "" {
		c.BinPath = DefaultBinPath
	}
	if c.StopGrace <= 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Threads < 0 {
		c.Threads = 0
	}
	return c
}

// Process is a single ffmpeg invocation producing MPEG-TS on stdout.
type Process struct {
	cfg     Config
	src     model.StreamSource
	profile model.Profile
	ring    *LineRing
	logger  zerolog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdout   *os.File
	exited   chan struct{}
	waitErr  error
	stopped  bool
	readOnce sync.Once
}

// NewProcess prepares a process for src. Nothing runs until Start.
func NewProcess(cfg Config, src model.StreamSource, profile model.Profile) *Process {
	return &Process{
		cfg:     cfg.withDefaults(),
		src:     src,
		profile: profile,
		ring:    NewLineRing(stderrLines),
		logger: log.WithComponent("ffmpeg").With().
			Str(log.FieldSourceKind, string(src.Kind)).
			Str(log.FieldProfile, string(profile)).
			Logger(),
	}
}

// Args returns the command line the process runs with.
func (p *Process) Args() []string {
	return BuildArgs(p.src, p.profile, p.cfg.Threads)
}

// Start launches ffmpeg in its own process group. The process is
// terminated when ctx is done.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return fmt.Errorf("%w: process already stopped", lifecycle.ErrProcessStartFailed)
	}
	if p.cmd != nil {
		return fmt.Errorf("%w: process already started", lifecycle.ErrProcessStartFailed)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", lifecycle.ErrProcessStartFailed, err)
	}

	bin, err := exec.LookPath(p.cfg.BinPath)
	if err != nil {
		startTotal.WithLabelValues("not_found").Inc()
		return fmt.Errorf("%w: %s: %v", lifecycle.ErrBinaryNotFound, p.cfg.BinPath, err)
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		startTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: stdout pipe: %v", lifecycle.ErrProcessStartFailed, err)
	}

	// #nosec G204 -- args are built from a classified source and a fixed profile table
	cmd := exec.Command(bin, p.Args()...)
	procgroup.Set(cmd)
	cmd.Stdout = writer
	cmd.Stderr = p.ring
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		startTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", lifecycle.ErrProcessStartFailed, err)
	}
	_ = writer.Close()

	p.cmd = cmd
	p.stdout = reader
	p.exited = make(chan struct{})
	startTotal.WithLabelValues("ok").Inc()

	logger := log.WithContext(ctx, p.logger).With().Int(log.FieldPID, cmd.Process.Pid).Logger()
	logger.Info().Str(log.FieldEvent, "ffmpeg.started").Msg("transcoder started")

	stopOnCancel := context.AfterFunc(ctx, func() { _ = p.Stop() })
	go p.wait(cmd, p.exited, stopOnCancel, logger)
	return nil
}

func (p *Process) wait(cmd *exec.Cmd, exited chan struct{}, stopOnCancel func() bool, logger zerolog.Logger) {
	err := cmd.Wait()
	stopOnCancel()

	p.mu.Lock()
	p.waitErr = err
	stopped := p.stopped
	p.mu.Unlock()
	close(exited)

	tail := p.ring.LastN(stderrLines)
	for _, line := range tail {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "corrupt") || strings.Contains(lower, "invalid data") {
			decodeErrorTotal.Inc()
		}
	}

	reason := "eof"
	switch {
	case stopped:
		reason = "stopped"
	case err != nil:
		reason = "error"
	}
	exitTotal.WithLabelValues(reason).Inc()

	ev := logger.Info()
	if reason == "error" {
		ev = logger.Warn().Err(err).Strs("stderr", tail)
	}
	ev.Str(log.FieldEvent, "ffmpeg.exited").Str("reason", reason).Msg("transcoder exited")
}

// ReadChunks streams stdout in chunks of at most ChunkSize bytes. The
// channel closes when the process output ends or ctx is done. Only the
// first call returns a live channel.
func (p *Process) ReadChunks(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 8)

	started := false
	p.readOnce.Do(func() {
		p.mu.Lock()
		stdout := p.stdout
		p.mu.Unlock()
		if stdout == nil {
			return
		}
		started = true
		go p.pump(ctx, stdout, out)
	})
	if !started {
		close(out)
	}
	return out
}

func (p *Process) pump(ctx context.Context, stdout *os.File, out chan<- []byte) {
	defer close(out)
	unblock := context.AfterFunc(ctx, func() { _ = stdout.Close() })
	defer unblock()

	for {
		buf := make([]byte, p.cfg.ChunkSize)
		n, err := stdout.Read(buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && ctx.Err() == nil {
				p.logger.Debug().Err(err).Msg("transcoder output read ended")
			}
			return
		}
	}
}

// Stop terminates the process group, escalating to SIGKILL after the
// configured grace period. It is idempotent and safe before Start.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	cmd, exited, stdout := p.cmd, p.exited, p.stdout
	p.mu.Unlock()

	if cmd == nil {
		return nil
	}

	outcome := procgroup.Terminate(cmd, exited, p.cfg.StopGrace)
	if stdout != nil {
		_ = stdout.Close()
	}
	p.logger.Debug().
		Int(log.FieldPID, cmd.Process.Pid).
		Str("outcome", string(outcome)).
		Msg("transcoder stopped")
	return nil
}

// IsRunning reports whether the process was started and has not exited.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.exited == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Stderr returns the last n lines ffmpeg wrote to stderr.
func (p *Process) Stderr(n int) []string {
	return p.ring.LastN(n)
}

// ExitErr returns the wait error once the process exited.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}
