// Package scheduler implements the node scheduler (spec 4.4): priority-ordered
// execution of heterogeneous nodes under explicit or profile-derived
// execution tiers, with a bounded, ordered shutdown sequence.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/horus-rt/horus/internal/herr"
	"github.com/horus-rt/horus/internal/lifecycle"
	"github.com/horus-rt/horus/internal/obslog"
	"github.com/horus-rt/horus/internal/profiler"
	"github.com/horus-rt/horus/internal/scheduler/detclock"
	"github.com/horus-rt/horus/internal/scheduler/trace"
)

// Config configures a Scheduler.
type Config struct {
	Clock           detclock.Config
	RecordTrace     bool
	MaxTicks        uint64 // 0 = unlimited
	ShutdownTimeout time.Duration
	AsyncWorkers    int
	Log             *obslog.Logger
	// Profile, if set, resolves TierAuto nodes per the offline profiler's
	// recommended tier instead of defaulting them to Fast.
	Profile *profiler.Profile
}

// DefaultConfig mirrors the Rust original's DeterministicConfig::default():
// seed 42, virtual time on, 1ms ticks, tracing on.
func DefaultConfig() Config {
	return Config{
		Clock:           detclock.DefaultConfig(),
		RecordTrace:     true,
		ShutdownTimeout: 5 * time.Second,
		AsyncWorkers:    4,
	}
}

// Scheduler runs a priority-ordered set of nodes, each under its tier's
// execution strategy, per tick.
type Scheduler struct {
	cfg   Config
	clock *detclock.Clock
	trace *trace.Trace
	log   *obslog.Logger

	mu      sync.Mutex
	nodes   []*node
	byName  map[string]*node
	nextIns int

	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once

	async *asyncPool
}

// New creates a Scheduler from cfg.
func New(cfg Config) *Scheduler {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.AsyncWorkers == 0 {
		cfg.AsyncWorkers = 4
	}
	log := cfg.Log
	if log == nil {
		log = obslog.Default("scheduler")
	}
	var tr *trace.Trace
	if cfg.RecordTrace {
		tr = trace.New()
	}
	return &Scheduler{
		cfg:    cfg,
		clock:  detclock.New(cfg.Clock),
		trace:  tr,
		log:    log,
		byName: make(map[string]*node),
		stopCh: make(chan struct{}),
		async:  newAsyncPool(cfg.AsyncWorkers),
	}
}

// Clock returns the scheduler's deterministic clock.
func (s *Scheduler) Clock() *detclock.Clock { return s.clock }

// Trace returns the scheduler's execution trace, or nil if RecordTrace was
// false.
func (s *Scheduler) Trace() *trace.Trace { return s.trace }

// AddNode registers a node. Nodes may be added only before Run is called.
func (s *Scheduler) AddNode(cfg NodeConfig) error {
	if cfg.Name == "" {
		return herr.ValidationErr("scheduler.AddNode", "node name must not be empty")
	}
	if cfg.Body == nil {
		return herr.ValidationErr("scheduler.AddNode", "node body must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return herr.New(herr.Fatal, "scheduler.AddNode", "cannot add a node after Run has started")
	}
	if _, exists := s.byName[cfg.Name]; exists {
		return herr.ValidationErr("scheduler.AddNode", "duplicate node name: "+cfg.Name)
	}

	n := newNode(cfg, s.nextIns, s.resolveTier(cfg.Tier, cfg.Name))
	s.nextIns++
	s.nodes = append(s.nodes, n)
	s.byName[cfg.Name] = n
	return nil
}

// resolveTier returns the tier a node actually runs under: its declared
// tier, or for TierAuto, the profiler's recommendation (default Fast with no
// profile loaded). Called once at AddNode time, before the node's
// tier-dependent channels are sized, so the resolution this returns is the
// one the node runs under for the rest of the scheduler's life — a
// TierAuto node's resolved tier does not change even if Config.Profile is
// swapped out later.
func (s *Scheduler) resolveTier(declared Tier, nodeName string) Tier {
	if declared != TierAuto {
		return declared
	}
	if s.cfg.Profile == nil {
		return TierFast
	}
	switch s.cfg.Profile.Tier(nodeName) {
	case profiler.TierJIT:
		return TierJIT
	case profiler.TierAsyncIO:
		return TierAsyncIO
	case profiler.TierBackground:
		return TierBackground
	case profiler.TierNormal:
		return TierNormal
	case profiler.TierIsolated:
		return TierIsolated
	default:
		return TierFast
	}
}

// sortedNodes returns nodes ordered by (priority, insertion order), stable
// across calls as required by spec 4.4 step 1.
func (s *Scheduler) sortedNodes() []*node {
	s.mu.Lock()
	out := make([]*node, len(s.nodes))
	copy(out, s.nodes)
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].cfg.Priority != out[j].cfg.Priority {
			return out[i].cfg.Priority < out[j].cfg.Priority
		}
		return out[i].insertion < out[j].insertion
	})
	return out
}

// Run executes the scheduler until ctx is canceled, Stop is called, or
// Config.MaxTicks is reached (virtual-time mode only returns once the
// target is hit; callers driving real time should cancel ctx themselves).
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return herr.New(herr.Fatal, "scheduler.Run", "already running")
	}
	s.running = true
	s.mu.Unlock()
	nodes := s.sortedNodes()

	s.async.start()
	for idx, n := range nodes {
		s.initNode(ctx, idx, n)
	}
	startBackgroundWorkers(s, nodes)

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(nodes)
		case <-s.stopCh:
			return s.shutdown(nodes)
		default:
		}

		tick := s.clock.Tick()
		if s.cfg.MaxTicks > 0 && tick >= s.cfg.MaxTicks {
			return s.shutdown(nodes)
		}

		s.runTick(ctx, tick, nodes)

		if s.trace != nil {
			s.trace.FinalizeTick(tick)
		}
		s.clock.AdvanceTick()
	}
}

// RunTicks runs exactly n additional ticks from the current tick, then
// shuts down. Useful for deterministic test harnesses and replay.
func (s *Scheduler) RunTicks(ctx context.Context, n uint64) error {
	s.cfg.MaxTicks = s.clock.Tick() + n
	return s.Run(ctx)
}

// Stop requests the scheduler to stop after the current tick completes.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) initNode(ctx context.Context, idx int, n *node) {
	n.setState(StateInitializing)
	start := s.clock.NowNs()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic during init: %v", r)
			}
		}()
		if initer, ok := n.cfg.Body.(Initializer); ok {
			err = initer.Init(ctx)
		}
	}()
	if err != nil {
		n.markCrashed(herr.Fatal)
		s.log.Error("node init failed", obslog.String("node", n.cfg.Name), obslog.Err(err))
		return
	}
	n.setState(StateRunning)
	s.appendTrace(trace.Entry{
		Tick: 0, NodeIndex: idx, NodeName: n.cfg.Name, Kind: trace.TickStart,
		VirtualTimeNs: start,
	})
}

// runTick executes one scheduling pass over nodes in priority order (spec
// 4.4 steps 2-3).
func (s *Scheduler) runTick(ctx context.Context, tick uint64, nodes []*node) {
	for idx, n := range nodes {
		if !n.enabled.Load() || n.State() != StateRunning {
			continue
		}

		tier := n.tier
		start := s.clock.NowNs()
		s.appendTrace(trace.Entry{Tick: tick, NodeIndex: idx, NodeName: n.cfg.Name, Kind: trace.TickStart, VirtualTimeNs: start})

		switch tier {
		case TierBackground, TierIsolated:
			// Signal the dedicated goroutine; never block the tick thread.
			select {
			case n.bgSignal <- struct{}{}:
			default:
			}
		case TierAsyncIO:
			s.runAsyncTick(ctx, n)
		default: // JIT, Fast, Normal: inline
			s.runInlineTick(ctx, n)
		}

		elapsed := s.clock.NowNs() - start
		s.appendTrace(trace.Entry{Tick: tick, NodeIndex: idx, NodeName: n.cfg.Name, Kind: trace.TickEnd, VirtualTimeNs: s.clock.NowNs(), ElapsedNs: elapsed})
	}
}

// runInlineTick invokes a JIT/Fast/Normal body synchronously on the tick
// thread, isolating panics into Crashed rather than unwinding the scheduler.
func (s *Scheduler) runInlineTick(ctx context.Context, n *node) {
	err := safeTick(ctx, n.cfg.Body)
	s.handleTickResult(n, err)
}

func (s *Scheduler) handleTickResult(n *node, result tickResult) {
	if result.crashed {
		n.markCrashed(herr.Fatal)
		s.appendTrace(trace.Entry{NodeName: n.cfg.Name, Kind: trace.Error})
		s.log.Error("node crashed", obslog.String("node", n.cfg.Name), obslog.Err(result.err))
		return
	}
	if result.err != nil {
		n.markError(herr.Fatal)
		s.appendTrace(trace.Entry{NodeName: n.cfg.Name, Kind: trace.Error})
		s.log.Warn("node tick failed", obslog.String("node", n.cfg.Name), obslog.Err(result.err))
	}
}

// runAsyncTick implements spec 4.4's AsyncIO contract: collect the previous
// tick's result (if any), then launch this tick without waiting.
func (s *Scheduler) runAsyncTick(ctx context.Context, n *node) {
	select {
	case result := <-n.asyncPending:
		s.handleTickResult(n, tickResult{err: result})
	default:
	}
	s.async.submit(ctx, n)
}

func (s *Scheduler) appendTrace(e trace.Entry) {
	if s.trace == nil {
		return
	}
	s.trace.Append(e)
}

// shutdown implements spec 4.4's ordered teardown: stop signaling
// background/async workers, drain them with a bounded wait via
// internal/lifecycle, then call each node's Shutdown hook in priority order.
func (s *Scheduler) shutdown(nodes []*node) error {
	for _, n := range nodes {
		n.setState(StateStopping)
	}

	drain := lifecycle.New(s.cfg.ShutdownTimeout, s.log.With(obslog.String("phase", "drain")))
	for _, n := range nodes {
		if n.bgDone != nil {
			done := n.bgDone
			drain.Register(func() error {
				close(n.bgSignal)
				<-done
				return nil
			})
		}
	}
	drain.Register(func() error {
		s.async.stop()
		return nil
	})
	if err := drain.Run(context.Background()); err != nil {
		s.log.Warn("tier worker drain did not complete cleanly", obslog.Err(err))
	}

	var firstErr error
	for _, n := range nodes {
		if shutdowner, ok := n.cfg.Body.(Shutdowner); ok {
			if err := safeShutdown(shutdowner); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		n.setState(StateStopped)
	}
	return firstErr
}

func safeShutdown(s Shutdowner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during shutdown: %v", r)
		}
	}()
	return s.Shutdown(context.Background())
}

// tickResult distinguishes a returned error from a recovered panic.
type tickResult struct {
	err     error
	crashed bool
}

// safeTick invokes body.Tick, recovering a panic into a crashed tickResult
// per spec 4.4's error semantics ("a body that panics is isolated").
func safeTick(ctx context.Context, body Body) (result tickResult) {
	defer func() {
		if r := recover(); r != nil {
			result = tickResult{err: fmt.Errorf("panic: %v", r), crashed: true}
		}
	}()
	result.err = body.Tick(ctx)
	return result
}
