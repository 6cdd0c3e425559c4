package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/horus-rt/horus/internal/herr"
)

// Tier is a node's execution strategy (spec 3, 4.4). The zero value, TierAuto,
// means "derive from an offline profile if one is loaded, else Fast" — see
// Scheduler.resolveTier.
type Tier uint8

const (
	TierAuto Tier = iota
	TierJIT
	TierFast
	TierNormal
	TierAsyncIO
	TierBackground
	TierIsolated
)

func (t Tier) String() string {
	switch t {
	case TierAuto:
		return "Auto"
	case TierJIT:
		return "JIT"
	case TierFast:
		return "Fast"
	case TierNormal:
		return "Normal"
	case TierAsyncIO:
		return "AsyncIO"
	case TierBackground:
		return "Background"
	case TierIsolated:
		return "Isolated"
	default:
		return "Unknown"
	}
}

// State is a node's lifecycle state (spec 4.4's state machine).
type State uint8

const (
	StateUninitialized State = iota
	StateInitializing
	StateRunning
	StatePaused
	StateStopping
	StateStopped
	StateError
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// Body is the user-supplied computation a node wraps. Tick is invoked once
// per scheduler period under the node's tier strategy; ctx carries
// cooperative cancellation for AsyncIO bodies and the shutdown signal for
// Background bodies.
type Body interface {
	Tick(ctx context.Context) error
}

// Initializer is an optional Body extension run once before the scheduler's
// first tick.
type Initializer interface {
	Init(ctx context.Context) error
}

// Shutdowner is an optional Body extension run once, in priority order,
// during scheduler shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// NodeConfig declares a node to be added to a Scheduler.
type NodeConfig struct {
	// Name must be unique within the scheduler.
	Name string
	// Body is the node's tick computation.
	Body Body
	// Priority orders execution within a tick; lower runs first. Ties break
	// by insertion order.
	Priority uint32
	// Tier selects the execution strategy. The zero value is TierAuto.
	Tier Tier
	// RestartOnCrash is carried on the node's config but the scheduler does
	// not read it: a crashed node stays Crashed for the rest of the run.
	// Respawning an isolated child is configured on isolated.Config instead.
	RestartOnCrash bool
}

// node is the scheduler's internal bookkeeping for one registered body.
type node struct {
	cfg       NodeConfig
	insertion int

	// tier is cfg.Tier resolved against the scheduler's profile (if any) at
	// registration time; every tier-dependent decision — which channels to
	// allocate, which worker loop to dispatch to — is made against this
	// field, never against cfg.Tier directly, so a TierAuto node that the
	// profiler resolves to Background/Isolated/AsyncIO actually gets the
	// channels that tier needs.
	tier Tier

	state      atomic.Uint32
	crashKind  atomic.Uint32 // herr.Kind, valid only when state is Error/Crashed
	errorCount atomic.Uint64
	enabled    atomic.Bool

	// asyncPending holds the in-flight AsyncIO tick's result, collected on
	// the following tick per spec 4.4's "launches without waiting, collects
	// on the next tick" contract.
	asyncPending chan error

	// bgSignal wakes the Background tier's dedicated goroutine; sized 1 so a
	// scheduler tick that finds the node still busy does not block (spec:
	// "does not wait").
	bgSignal chan struct{}
	bgDone   chan struct{}
}

// newNode builds a node's bookkeeping from its already-resolved tier (see
// Scheduler.resolveTier), not cfg.Tier directly, so channel allocation
// matches how the node will actually be dispatched.
func newNode(cfg NodeConfig, insertion int, tier Tier) *node {
	n := &node{cfg: cfg, insertion: insertion, tier: tier}
	n.state.Store(uint32(StateUninitialized))
	n.enabled.Store(true)
	if tier == TierAsyncIO {
		n.asyncPending = make(chan error, 1)
	}
	if tier == TierBackground || tier == TierIsolated {
		n.bgSignal = make(chan struct{}, 1)
		n.bgDone = make(chan struct{})
	}
	return n
}

func (n *node) State() State { return State(n.state.Load()) }

func (n *node) setState(s State) { n.state.Store(uint32(s)) }

func (n *node) markCrashed(kind herr.Kind) {
	n.crashKind.Store(uint32(kind))
	n.setState(StateCrashed)
}

func (n *node) markError(kind herr.Kind) {
	n.crashKind.Store(uint32(kind))
	n.errorCount.Add(1)
}

// ErrorCount returns the number of Tick calls that returned a non-nil error
// (distinct from panics, which transition the node to Crashed instead).
func (n *node) ErrorCount() uint64 { return n.errorCount.Load() }
