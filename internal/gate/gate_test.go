package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func fastConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseBackoff:  5 * time.Millisecond,
		BackoffCap:   20 * time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
		OpTimeout:    time.Second,
		RetryWindow:  100 * time.Millisecond,
	}
}

func okProbe(context.Context) error   { return nil }
func downProbe(context.Context) error { return errors.New("connection refused") }

func (g *Gate) queueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

func TestGateStartsInitializing(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())
	assert.Equal(t, StateInitializing, g.State())
	assert.False(t, g.Degraded())
}

func TestGateBecomesReadyOnFirstProbe(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())
	g.Start(context.Background())

	require.Eventually(t, func() bool {
		return g.State() == StateReady
	}, time.Second, 5*time.Millisecond)
	assert.False(t, g.Degraded())
}

func TestGateFailOpenAfterRetryBudget(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2
	g := New(cfg, []Probe{downProbe}, testLogger())
	g.Start(context.Background())

	// 2 failed probes with one 5ms backoff between them: Ready must arrive
	// well inside a second, not wedge in Error.
	require.Eventually(t, func() bool {
		return g.State() == StateReady
	}, time.Second, 5*time.Millisecond)
	assert.True(t, g.Degraded())
}

func TestGateStrictModeParksInError(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2
	cfg.Strict = true
	g := New(cfg, []Probe{downProbe}, testLogger())
	g.Start(context.Background())

	require.Eventually(t, func() bool {
		return g.State() == StateError
	}, time.Second, 5*time.Millisecond)

	// Stays parked: no fail-open transition follows.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateError, g.State())
	assert.False(t, g.Degraded())
}

func TestGateProbesRotate(t *testing.T) {
	var mu sync.Mutex
	var order []string

	probe := func(name string, err error) Probe {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return err
		}
	}

	cfg := fastConfig()
	cfg.MaxRetries = 3
	g := New(cfg, []Probe{
		probe("a", errors.New("down")),
		probe("b", errors.New("down")),
		probe("c", nil),
	}, testLogger())
	g.Start(context.Background())

	require.Eventually(t, func() bool {
		return g.State() == StateReady
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, order, "one probe per attempt, rotating")
}

func TestExecuteRunsImmediatelyWhenReady(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())
	g.Start(context.Background())
	require.Eventually(t, func() bool { return g.State() == StateReady }, time.Second, 5*time.Millisecond)

	v, err := Execute(context.Background(), g, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 0, g.queueLen())
}

func TestExecuteQueueFIFO(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())

	var mu sync.Mutex
	var ran []string
	var wg sync.WaitGroup

	// Enqueue A, B, C in order while the gate is not ready yet; wait for
	// each to land in the queue before submitting the next.
	for i, name := range []string{"A", "B", "C"} {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Execute(context.Background(), g, func(context.Context) (string, error) {
				mu.Lock()
				ran = append(ran, name)
				mu.Unlock()
				return name, nil
			})
			assert.NoError(t, err)
		}()
		require.Eventually(t, func() bool {
			return g.queueLen() == i+1
		}, time.Second, time.Millisecond)
	}

	g.Start(context.Background())
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A", "B", "C"}, ran)
}

func TestExecuteEnqueuesBehindExistingQueueWhenReady(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())

	var mu sync.Mutex
	var ran []string

	done := make(chan struct{})
	go func() {
		_, _ = Execute(context.Background(), g, func(context.Context) (string, error) {
			mu.Lock()
			ran = append(ran, "queued")
			mu.Unlock()
			return "queued", nil
		})
		close(done)
	}()
	require.Eventually(t, func() bool { return g.queueLen() == 1 }, time.Second, time.Millisecond)

	// Force Ready without draining: a new Execute must not overtake the
	// already-queued operation.
	g.mu.Lock()
	g.state = StateReady
	g.mu.Unlock()

	second := make(chan struct{})
	go func() {
		_, _ = Execute(context.Background(), g, func(context.Context) (string, error) {
			mu.Lock()
			ran = append(ran, "late")
			mu.Unlock()
			return "late", nil
		})
		close(second)
	}()
	require.Eventually(t, func() bool { return g.queueLen() == 2 }, time.Second, time.Millisecond)

	go g.drainQueue(context.Background())
	<-done
	<-second

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"queued", "late"}, ran)
}

func TestConcurrentExecuteDuringDrain(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())

	// Enqueue from many goroutines racing the Ready flip and the drain.
	// Every op must run exactly once with its own result and no spurious
	// timeout; run with -race to check the enqueue/drain handoff.
	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(want int) {
			defer wg.Done()
			got, err := Execute(context.Background(), g, func(context.Context) (int, error) {
				return want, nil
			})
			if err == nil && got != want {
				err = errors.New("result delivered to the wrong caller")
			}
			errs <- err
		}(i)
	}

	g.Start(context.Background())
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, g.queueLen())
}

func TestQueuedOperationTimesOut(t *testing.T) {
	cfg := fastConfig()
	cfg.OpTimeout = 30 * time.Millisecond
	g := New(cfg, []Probe{downProbe}, testLogger())
	// Gate never started: the op can only time out.

	start := time.Now()
	_, err := Execute(context.Background(), g, func(context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOperationTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, g.queueLen(), "evicted op must leave the queue")
}

func TestTimeoutIsolation(t *testing.T) {
	cfg := fastConfig()
	cfg.OpTimeout = 75 * time.Millisecond
	g := New(cfg, []Probe{okProbe}, testLogger())

	timedOut := make(chan error, 1)
	go func() {
		_, err := Execute(context.Background(), g, func(context.Context) (string, error) {
			return "victim", nil
		})
		timedOut <- err
	}()
	require.Eventually(t, func() bool { return g.queueLen() == 1 }, time.Second, time.Millisecond)

	// Wait for the first op to be evicted, then enqueue a sibling and make
	// the gate ready before the sibling's own deadline.
	assert.ErrorIs(t, <-timedOut, ErrOperationTimeout)

	survivor := make(chan string, 1)
	go func() {
		v, err := Execute(context.Background(), g, func(context.Context) (string, error) {
			return "survivor", nil
		})
		require.NoError(t, err)
		survivor <- v
	}()
	require.Eventually(t, func() bool { return g.queueLen() == 1 }, time.Second, time.Millisecond)

	g.Start(context.Background())
	assert.Equal(t, "survivor", <-survivor)
}

func TestExecuteContextCancelledWhileQueued(t *testing.T) {
	g := New(fastConfig(), []Probe{downProbe}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := Execute(ctx, g, func(context.Context) (int, error) {
			t.Error("abandoned op must never run")
			return 0, nil
		})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return g.queueLen() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, g.queueLen())
}

func TestRetryConnectionDebounce(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 1
	cfg.Strict = true
	g := New(cfg, []Probe{downProbe}, testLogger())

	assert.True(t, g.RetryConnection())
	require.Eventually(t, func() bool { return g.State() == StateError }, time.Second, time.Millisecond)

	// Inside the debounce window: no-op.
	assert.False(t, g.RetryConnection())

	time.Sleep(cfg.RetryWindow + 10*time.Millisecond)
	assert.True(t, g.RetryConnection())
}

func TestRetryCycleOutlivesCaller(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 2
	cfg.RetryWindow = time.Millisecond
	g := New(cfg, []Probe{downProbe}, testLogger())

	// The cycle runs on the Start context, so a caller that triggers a
	// retry and immediately goes away (an HTTP handler returning, its
	// request context cancelled) cannot abort the backoff mid-cycle. The
	// cycle must run to exhaustion and fail open, never park in Error
	// un-degraded.
	g.Start(context.Background())
	require.Eventually(t, func() bool { return g.State() == StateReady }, time.Second, time.Millisecond)
	require.True(t, g.Degraded())

	time.Sleep(cfg.RetryWindow + 5*time.Millisecond)
	require.True(t, g.RetryConnection())

	require.Eventually(t, func() bool {
		return g.State() == StateReady && g.Degraded()
	}, time.Second, time.Millisecond, "retry cycle must complete and fail open without a waiting caller")
}

func TestReconnectIsNotReentrant(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseBackoff = 200 * time.Millisecond // Keep the first cycle busy.
	g := New(cfg, []Probe{downProbe}, testLogger())

	ctx := context.Background()
	assert.True(t, g.startCycle(ctx))
	assert.False(t, g.startCycle(ctx), "second cycle while one is active must be a no-op")
}

func TestOnStateChangeSequence(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())

	var mu sync.Mutex
	var seen []State
	g.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	g.Start(context.Background())
	require.Eventually(t, func() bool { return g.State() == StateReady }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateReady}, seen)
}

func TestOperationErrorsPropagate(t *testing.T) {
	g := New(fastConfig(), []Probe{okProbe}, testLogger())
	g.Start(context.Background())
	require.Eventually(t, func() bool { return g.State() == StateReady }, time.Second, time.Millisecond)

	boom := errors.New("backend rejected")
	_, err := Execute(context.Background(), g, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}
