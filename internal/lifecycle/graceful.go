// Package lifecycle provides bounded, ordered shutdown for the scheduler and its
// owned resources (regions, tensor pools, background/async tier workers).
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/horus-rt/horus/internal/obslog"
)

// Shutdown runs registered cleanup functions one at a time in LIFO order
// (last-registered, first-stopped), bounded by a timeout.
type Shutdown struct {
	mu      sync.Mutex
	fns     []func() error
	timeout time.Duration
	log     *obslog.Logger
}

// New creates a Shutdown manager with the given bound on total shutdown time.
func New(timeout time.Duration, log *obslog.Logger) *Shutdown {
	if log == nil {
		log = obslog.Default("lifecycle")
	}
	return &Shutdown{timeout: timeout, log: log}
}

// Register adds a cleanup function, run before any function registered earlier.
func (s *Shutdown) Register(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
}

// Run executes all registered functions in LIFO order, bounded by the configured
// timeout. It returns a joined error if any function failed or the deadline was
// exceeded before all functions completed.
func (s *Shutdown) Run(ctx context.Context) error {
	s.mu.Lock()
	fns := make([]func() error, len(s.fns))
	copy(fns, s.fns)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	errCh := make(chan error, len(fns))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				errCh <- err
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("shutdown deadline exceeded before all handlers completed")
		return fmt.Errorf("shutdown: timed out after %s", s.timeout)
	}
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %d handler(s) failed: %v", len(errs), errs)
	}
	return nil
}
