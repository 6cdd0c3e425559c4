package scheduler

import (
	"context"
	"sync"

	"github.com/horus-rt/horus/internal/herr"
)

// asyncPool is a small fixed-size worker pool backing the AsyncIO tier: a
// tick submits a node's Body.Tick call without waiting for it, and the
// result lands on that node's asyncPending channel for collection on a
// later tick (spec 4.4).
type asyncPool struct {
	size int
	jobs chan asyncJob
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

type asyncJob struct {
	ctx context.Context
	n   *node
}

func newAsyncPool(size int) *asyncPool {
	if size <= 0 {
		size = 1
	}
	return &asyncPool{
		size: size,
		jobs: make(chan asyncJob, size*4),
		done: make(chan struct{}),
	}
}

func (p *asyncPool) start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

func (p *asyncPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := safeTick(job.ctx, job.n.cfg.Body)
			var err error
			if result.crashed {
				job.n.markCrashed(herr.Fatal)
				err = result.err
			} else {
				err = result.err
			}
			select {
			case job.n.asyncPending <- err:
			default:
				// Previous result never collected; drop it rather than block,
				// matching the "launches without waiting" contract.
				<-job.n.asyncPending
				job.n.asyncPending <- err
			}
		case <-p.done:
			return
		}
	}
}

// submit enqueues a tick for asynchronous execution. Submission never
// blocks the caller for longer than it takes to enqueue.
func (p *asyncPool) submit(ctx context.Context, n *node) {
	select {
	case p.jobs <- asyncJob{ctx: ctx, n: n}:
	default:
		// Pool saturated; skip this tick's async launch rather than block
		// the scheduler's tick thread.
	}
}

// stop drains running workers and releases their goroutines. Safe to call
// even if start was never called.
func (p *asyncPool) stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}
