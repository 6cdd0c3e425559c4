package scheduler

import "context"

// startBackgroundWorkers launches one dedicated goroutine per Background or
// Isolated tier node. Each goroutine blocks on its bgSignal channel and
// invokes Tick once per signal, so a slow body never stalls the scheduler's
// tick thread (spec 4.4: "runs on its own goroutine, woken but not waited
// on"). Isolated nodes run on this same path exactly like Background ones;
// out-of-process supervision comes from using an isolated.Supervisor as the
// node's Body.
func startBackgroundWorkers(s *Scheduler, nodes []*node) {
	for _, n := range nodes {
		if n.bgSignal == nil {
			continue
		}
		go backgroundLoop(s, n)
	}
}

func backgroundLoop(s *Scheduler, n *node) {
	defer close(n.bgDone)
	ctx := context.Background()
	for range n.bgSignal {
		result := safeTick(ctx, n.cfg.Body)
		s.handleTickResult(n, result)
	}
}
