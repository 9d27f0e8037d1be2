package gate

import (
	"context"
	"sync/atomic"
	"time"
)

type opResult struct {
	value any
	err   error
}

// queuedOp is a deferred unit of work. The queue owns it from enqueue until
// it is claimed, either by the drain goroutine (to run it) or by its timeout
// timer (to evict it). Claiming is a one-shot CAS, so an operation runs at
// most once and is never silently dropped.
type queuedOp struct {
	run        func(ctx context.Context) (any, error)
	done       chan opResult
	enqueuedAt time.Time
	timeout    time.Duration
	claimed    atomic.Bool
	timer      *time.Timer
}

func newQueuedOp(run func(ctx context.Context) (any, error), timeout time.Duration) *queuedOp {
	return &queuedOp{
		run:        run,
		done:       make(chan opResult, 1),
		enqueuedAt: time.Now(),
		timeout:    timeout,
	}
}

// claim transfers ownership to the caller. Returns false if the op was
// already claimed (run, evicted, or abandoned).
func (q *queuedOp) claim() bool {
	return q.claimed.CompareAndSwap(false, true)
}

// evict removes a timed-out operation from the queue and rejects its result.
// Sibling operations are unaffected.
func (g *Gate) evict(q *queuedOp) {
	if !q.claim() {
		return // Already running or already delivered.
	}

	g.mu.Lock()
	for i, queued := range g.queue {
		if queued == q {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	g.log.Warn().
		Dur("waited", time.Since(q.enqueuedAt)).
		Msg("Queued operation timed out")

	q.done <- opResult{err: ErrOperationTimeout}
}

// abandon releases a queued op whose caller gave up (context cancelled)
// before the op was claimed. Returns false if the op already started running,
// in which case the caller must keep waiting for its result.
func (g *Gate) abandon(q *queuedOp) bool {
	if !q.claim() {
		return false
	}

	g.mu.Lock()
	for i, queued := range g.queue {
		if queued == q {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
	}
	return true
}

// drainQueue runs queued operations in FIFO order, one at a time. Sequential
// draining preserves the relative ordering of operations enqueued by the same
// caller; it is deliberately not parallelized.
func (g *Gate) drainQueue(ctx context.Context) {
	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.mu.Unlock()
			return
		}
		q := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()

		if !q.claim() {
			continue // Evicted between pop and claim.
		}
		if q.timer != nil {
			q.timer.Stop()
		}

		// Each op runs to completion (success or error) before the next starts.
		value, err := q.run(ctx)
		q.done <- opResult{value: value, err: err}
	}
}
