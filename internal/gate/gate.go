// Package gate tracks backend connectivity as a small state machine and
// gates remote operations on it: when the backend is ready an operation runs
// immediately, otherwise it is queued and replayed in FIFO order once a
// liveness probe succeeds. Reconnection is bounded; after the retry budget is
// exhausted the gate fails open to Ready (degraded) by default so the
// application never wedges behind an unreachable backend.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the backend-connectivity state. Exactly one value holds at a time
// per Gate; it is mutated only by the gate itself.
type State int32

const (
	StateInitializing State = iota
	StateConnecting
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrConnection indicates the backend is unreachable (all probes failed).
	ErrConnection = errors.New("gate: backend unreachable")

	// ErrOperationTimeout indicates a queued operation exceeded its deadline
	// before the gate became ready.
	ErrOperationTimeout = errors.New("gate: queued operation timed out")
)

// Probe attempts a trivial read against the backend to establish liveness.
type Probe func(ctx context.Context) error

// Config tunes the gate. Zero values are replaced by the defaults below.
type Config struct {
	// MaxRetries bounds probe attempts per reconnect cycle.
	MaxRetries int
	// BaseBackoff is multiplied by the attempt number between probes,
	// capped at BackoffCap.
	BaseBackoff time.Duration
	BackoffCap  time.Duration
	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout time.Duration
	// OpTimeout is the per-operation queue deadline.
	OpTimeout time.Duration
	// RetryWindow debounces manual RetryConnection calls.
	RetryWindow time.Duration
	// Strict disables fail-open: the gate parks in Error after the retry
	// budget instead of forcing Ready. Queued operations then run out
	// their timeouts until a manual retry succeeds.
	Strict bool
}

// DefaultConfig mirrors the production tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseBackoff:  time.Second,
		BackoffCap:   5 * time.Second,
		ProbeTimeout: 3 * time.Second,
		OpTimeout:    10 * time.Second,
		RetryWindow:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = d.OpTimeout
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = d.RetryWindow
	}
	return c
}

// Gate is the readiness gate and operation queue. Construct with New, then
// call Start once; every other method is safe for concurrent use.
type Gate struct {
	cfg    Config
	probes []Probe
	log    zerolog.Logger

	mu         sync.Mutex
	ctx        context.Context
	state      State
	degraded   bool
	queue      []*queuedOp
	probeIdx   int
	connecting bool
	lastRetry  time.Time
	subs       []func(State)
}

// New creates a Gate in StateInitializing. probes must be non-empty; one
// probe is tried per reconnect attempt, rotating through the set.
func New(cfg Config, probes []Probe, log zerolog.Logger) *Gate {
	return &Gate{
		cfg:    cfg.withDefaults(),
		probes: probes,
		log:    log.With().Str("component", "gate").Logger(),
		state:  StateInitializing,
	}
}

// State returns the current connectivity state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Degraded reports whether the gate ever failed open: Ready was forced after
// the retry budget without a successful probe. Callers that need a truly
// healthy backend must check this alongside State.
func (g *Gate) Degraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}

// OnStateChange registers a callback invoked after every state transition.
// Callbacks run on the gate's goroutine and must not block.
func (g *Gate) OnStateChange(fn func(State)) {
	g.mu.Lock()
	g.subs = append(g.subs, fn)
	g.mu.Unlock()
}

// Start launches the initial reconnect cycle. ctx bounds the gate's lifetime
// and carries every cycle, including manual retries; pass the process
// context, not a request's. Calling Start while a cycle is already in flight
// is a no-op.
func (g *Gate) Start(ctx context.Context) {
	g.mu.Lock()
	g.ctx = ctx
	g.mu.Unlock()
	g.startCycle(ctx)
}

// RetryConnection manually requests a reconnect attempt. Requests arriving
// within RetryWindow of the previous one, or while a cycle is already in
// flight, are no-ops and return false. The cycle runs on the Start context,
// never the caller's, so a returning HTTP handler cannot cancel it mid-probe.
func (g *Gate) RetryConnection() bool {
	g.mu.Lock()
	now := time.Now()
	if g.connecting || now.Sub(g.lastRetry) < g.cfg.RetryWindow {
		g.mu.Unlock()
		return false
	}
	g.lastRetry = now
	ctx := g.ctx
	g.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	return g.startCycle(ctx)
}

// Execute runs op immediately when the gate is ready and its queue is
// drained; otherwise it enqueues op and blocks until the op runs, times out,
// or ctx is cancelled. Results are delivered exactly once.
func Execute[T any](ctx context.Context, g *Gate, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	erased := func(ctx context.Context) (any, error) {
		return op(ctx)
	}

	g.mu.Lock()
	// Ready with a non-empty queue still enqueues: running immediately
	// would let this op overtake operations the same caller queued earlier.
	if g.state == StateReady && len(g.queue) == 0 {
		g.mu.Unlock()
		return op(ctx)
	}
	q := newQueuedOp(erased, g.cfg.OpTimeout)
	// Arm the timer before the op is visible to the drain goroutine; the
	// drain reads q.timer without holding g.mu once it has popped the op.
	q.timer = time.AfterFunc(q.timeout, func() {
		g.evict(q)
	})
	g.queue = append(g.queue, q)
	g.mu.Unlock()

	select {
	case res := <-q.done:
		if res.err != nil {
			return zero, res.err
		}
		return res.value.(T), nil
	case <-ctx.Done():
		if g.abandon(q) {
			return zero, ctx.Err()
		}
		// Already running; wait for its result.
		res := <-q.done
		if res.err != nil {
			return zero, res.err
		}
		return res.value.(T), nil
	}
}

// startCycle spawns the reconnect goroutine unless one is already active.
func (g *Gate) startCycle(ctx context.Context) bool {
	g.mu.Lock()
	if g.connecting {
		g.mu.Unlock()
		return false
	}
	g.connecting = true
	g.mu.Unlock()

	go g.connect(ctx)
	return true
}

// connect runs one bounded reconnect cycle: Initializing → Connecting, then
// up to MaxRetries rotating probes with increasing backoff. Success drains
// the queue; exhaustion fails open to Ready (or parks in Error when strict).
func (g *Gate) connect(ctx context.Context) {
	defer func() {
		g.mu.Lock()
		g.connecting = false
		g.mu.Unlock()
	}()

	g.setState(StateInitializing)
	g.setState(StateConnecting)

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		err := g.probe(ctx)
		if err == nil {
			g.mu.Lock()
			g.degraded = false
			g.mu.Unlock()
			g.setState(StateReady)
			g.drainQueue(ctx)
			return
		}
		g.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_retries", g.cfg.MaxRetries).
			Msg("Liveness probe failed")

		g.setState(StateError)

		if attempt == g.cfg.MaxRetries {
			break
		}

		backoff := min(g.cfg.BaseBackoff*time.Duration(attempt), g.cfg.BackoffCap)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		g.setState(StateConnecting)
	}

	if g.cfg.Strict {
		g.log.Error().Msg("Retry budget exhausted, parking in ERROR (strict mode)")
		return // connect left the gate in StateError above.
	}

	// Fail-open: unblock the application rather than wedge it. Degraded is
	// the only trace that the backend was never actually reached.
	g.mu.Lock()
	g.degraded = true
	g.mu.Unlock()
	g.log.Warn().Msg("Retry budget exhausted, failing open to READY (degraded)")
	g.setState(StateReady)
	g.drainQueue(ctx)
}

// probe tries the next probe in rotation. One probe per attempt bounds the
// cost of a reconnect cycle.
func (g *Gate) probe(ctx context.Context) error {
	g.mu.Lock()
	if len(g.probes) == 0 {
		g.mu.Unlock()
		return ErrConnection
	}
	p := g.probes[g.probeIdx%len(g.probes)]
	g.probeIdx++
	g.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, g.cfg.ProbeTimeout)
	defer cancel()
	return p(pctx)
}

func (g *Gate) setState(next State) {
	g.mu.Lock()
	if g.state == next {
		g.mu.Unlock()
		return
	}
	prev := g.state
	g.state = next
	subs := make([]func(State), len(g.subs))
	copy(subs, g.subs)
	g.mu.Unlock()

	g.log.Info().
		Stringer("from", prev).
		Stringer("to", next).
		Msg("Connectivity state changed")

	for _, fn := range subs {
		fn(next)
	}
}
