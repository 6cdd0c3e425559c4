// Package isolated implements the scheduler's Isolated execution tier (spec
// 4.4): a node body runs outside the scheduler's process, so a crash there
// never touches the scheduler's own memory or goroutines. The supervisor owns
// a dedicated POD topic that the body publishes its results on; Tick itself
// exchanges no messages over it (see processRuntime.tick and wasmRuntime.tick).
package isolated

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/pod"
)

// Backend selects how an Isolated node's body is actually executed.
type Backend uint8

const (
	// BackendProcess runs the body as an OS child process, the tier's
	// primary contract: "body runs in a child process, communicates via a
	// dedicated POD topic."
	BackendProcess Backend = iota
	// BackendWasm runs the body as a sandboxed WASM module in-process via
	// wasmer-go, for bodies distributed as a portable .wasm blob instead of
	// a native per-architecture binary.
	BackendWasm
)

func (b Backend) String() string {
	switch b {
	case BackendProcess:
		return "process"
	case BackendWasm:
		return "wasm"
	default:
		return "unknown"
	}
}

// Config configures a Supervisor.
type Config struct {
	Backend Backend

	// Command and Args launch the child process. Required for BackendProcess.
	Command string
	Args    []string

	// WasmBytes holds the compiled module. Required for BackendWasm.
	WasmBytes []byte

	// Topic names the POD channel the child publishes tick results on. The
	// supervisor owns (and closes) this topic.
	Topic string
	// ElementSize is the fixed size, in bytes, of one published result.
	ElementSize uint32

	// RestartOnCrash respawns the child after it exits unexpectedly, rather
	// than leaving the node Crashed for the remainder of the run.
	RestartOnCrash bool
	// MaxRestarts bounds RestartOnCrash; 0 means unlimited.
	MaxRestarts int
	// RestartBackoff is the delay before a respawn attempt.
	RestartBackoff time.Duration
}

// DefaultConfig returns a Config with process-backend defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendProcess,
		ElementSize:    256,
		RestartBackoff: 200 * time.Millisecond,
	}
}

// runtime abstracts the actual tick execution so process and wasm backends
// (and a test double) share one Supervisor implementation.
type runtime interface {
	// start launches the backend, returning once it is ready to receive ticks.
	start(ctx context.Context) error
	// tick drives exactly one unit of work.
	tick(ctx context.Context) error
	// alive reports whether the backend is still usable.
	alive() bool
	// stop tears the backend down.
	stop() error
}

// Supervisor manages one Isolated-tier node's out-of-process (or sandboxed)
// execution, owning the POD topic its results are published on and
// restarting it on crash when configured to. It implements scheduler.Body, so it can be used
// directly as a NodeConfig.Body for the Isolated tier.
type Supervisor struct {
	cfg   Config
	topic *pod.Topic
	rt    runtime

	mu       sync.Mutex
	restarts atomic.Int32
	crashed  atomic.Bool
}

// NewSupervisor creates a Supervisor for cfg. The POD topic is opened
// immediately; the backend itself starts lazily on the first Init call.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Topic == "" {
		return nil, herr.ValidationErr("isolated.NewSupervisor", "topic must not be empty")
	}
	if cfg.ElementSize == 0 {
		cfg.ElementSize = 256
	}
	topic, err := pod.Open(cfg.Topic, cfg.ElementSize)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{cfg: cfg, topic: topic}
	switch cfg.Backend {
	case BackendWasm:
		s.rt = newWasmRuntime(cfg)
	default:
		s.rt = newProcessRuntime(cfg)
	}
	return s, nil
}

// Topic returns the POD topic this supervisor's child publishes results on.
func (s *Supervisor) Topic() *pod.Topic { return s.topic }

// Init starts the backend, per scheduler.Initializer.
func (s *Supervisor) Init(ctx context.Context) error {
	return s.rt.start(ctx)
}

// Tick drives one unit of isolated work, restarting the backend first if it
// crashed and RestartOnCrash is set.
func (s *Supervisor) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rt.alive() {
		if !s.cfg.RestartOnCrash {
			s.crashed.Store(true)
			return herr.New(herr.Fatal, "isolated.Tick", "backend is not running and RestartOnCrash is false")
		}
		if s.cfg.MaxRestarts > 0 && int(s.restarts.Load()) >= s.cfg.MaxRestarts {
			s.crashed.Store(true)
			return herr.New(herr.Fatal, "isolated.Tick", "exceeded max restart attempts")
		}
		time.Sleep(s.cfg.RestartBackoff)
		if err := s.rt.start(ctx); err != nil {
			return herr.Wrap(herr.Fatal, "isolated.Tick", "restart failed", err)
		}
		s.restarts.Add(1)
	}

	return s.rt.tick(ctx)
}

// Shutdown stops the backend and closes the POD topic, per
// scheduler.Shutdowner.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.rt.stop()
	if closeErr := s.topic.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// RestartCount reports how many times the backend has been respawned.
func (s *Supervisor) RestartCount() int { return int(s.restarts.Load()) }

// IsCrashed reports whether the supervisor gave up restarting.
func (s *Supervisor) IsCrashed() bool { return s.crashed.Load() }

// processRuntime supervises an OS child process.
type processRuntime struct {
	cfg Config
	cmd *exec.Cmd

	// exited is closed by the reaper goroutine started in start() once
	// cmd.Wait() returns. ProcessState alone cannot tell a live child from a
	// dead-but-unreaped one, since it is only populated by Wait(); exited is
	// the one source of truth alive() needs, and the single background
	// Wait() call here is also what actually reaps the child so it cannot
	// persist as a zombie.
	exited chan struct{}
}

func newProcessRuntime(cfg Config) *processRuntime {
	return &processRuntime{cfg: cfg}
}

func (p *processRuntime) start(ctx context.Context) error {
	if p.cfg.Command == "" {
		return herr.ValidationErr("isolated.processRuntime.start", "command must not be empty")
	}
	cmd := exec.CommandContext(ctx, p.cfg.Command, p.cfg.Args...)
	if err := cmd.Start(); err != nil {
		return herr.Wrap(herr.Io, "isolated.processRuntime.start", "failed to launch child process", err)
	}
	p.cmd = cmd
	p.exited = make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return nil
}

// tick for the process backend is a liveness check: the child ticks itself
// on its own schedule and publishes results on the shared POD topic; the
// supervisor's job is restart, not driving each tick synchronously.
func (p *processRuntime) tick(ctx context.Context) error {
	if !p.alive() {
		return herr.New(herr.Fatal, "isolated.processRuntime.tick", "child process has exited")
	}
	return nil
}

func (p *processRuntime) alive() bool {
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *processRuntime) stop() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if p.alive() {
		_ = p.cmd.Process.Kill()
	}
	<-p.exited
	return nil
}
