package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukit/assignio-backend/internal/cache"
	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/model"
)

// fakeAssignments scripts the remote read side.
type fakeAssignments struct {
	mu         sync.Mutex
	calls      int
	failBefore int // Fail the first failBefore calls.
	assignment *model.Assignment
}

func (f *fakeAssignments) GetByID(_ context.Context, id uuid.UUID) (*model.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failBefore {
		return nil, errors.New("backend unavailable")
	}
	if f.assignment == nil || f.assignment.ID != id {
		return nil, errors.New("not found")
	}
	a := *f.assignment
	return &a, nil
}

func (f *fakeAssignments) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func readyGate(t *testing.T) *gate.Gate {
	t.Helper()
	g := gate.New(gate.Config{
		MaxRetries:   1,
		BaseBackoff:  time.Millisecond,
		BackoffCap:   time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
		OpTimeout:    time.Second,
		RetryWindow:  10 * time.Millisecond,
	}, []gate.Probe{func(context.Context) error { return nil }}, zerolog.Nop())
	g.Start(context.Background())
	require.Eventually(t, func() bool { return g.State() == gate.StateReady }, time.Second, time.Millisecond)
	return g
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Multiplier:  1.5,
		DelayCap:    5 * time.Millisecond,
	}
}

func testAssignment(n int) *model.Assignment {
	a := &model.Assignment{
		ID:     uuid.New(),
		Title:  "Fractions quiz",
		Status: model.AssignmentStatusPublished,
	}
	for i := 0; i < n; i++ {
		a.Questions = append(a.Questions, model.Question{ID: uuid.New(), Prompt: "q", Position: i + 1})
	}
	return a
}

func newFetchPipeline(t *testing.T, reader AssignmentReader, store cache.Store) *Pipeline {
	t.Helper()
	return NewPipeline(store, readyGate(t), reader, &fakeSubmissions{}, fastRetry(), zerolog.Nop())
}

func TestFetchMissThenWriteThrough(t *testing.T) {
	ctx := context.Background()
	a := testAssignment(2)
	reader := &fakeAssignments{assignment: a}
	store := cache.NewMemoryStore(time.Minute, 0)
	p := newFetchPipeline(t, reader, store)

	assert.Equal(t, FetchNotRequested, p.FetchState(a.ID))

	got, err := p.FetchAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, 1, reader.callCount())
	assert.Equal(t, FetchLoaded, p.FetchState(a.ID))

	// Second fetch is served from cache: no extra backend call.
	got, err = p.FetchAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, got.Title)
	assert.Len(t, got.Questions, 2)
	assert.Equal(t, 1, reader.callCount())
}

func TestFetchCacheWriteFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	a := testAssignment(1)
	reader := &fakeAssignments{assignment: a}
	// 1-byte bound: every Set fails with ErrValueTooLarge.
	store := cache.NewMemoryStore(time.Minute, 1)
	p := newFetchPipeline(t, reader, store)

	got, err := p.FetchAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, FetchLoaded, p.FetchState(a.ID))

	// Nothing cached, so the next fetch hits the backend again.
	_, err = p.FetchAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.callCount())
}

func TestFetchWithRetryTerminalFailure(t *testing.T) {
	ctx := context.Background()
	reader := &fakeAssignments{failBefore: 100}
	store := cache.NewMemoryStore(time.Minute, 0)
	p := newFetchPipeline(t, reader, store)

	id := uuid.New()
	_, err := p.FetchAssignmentWithRetry(ctx, id)
	require.Error(t, err)
	assert.Equal(t, 3, reader.callCount(), "one call per attempt, no internal retry")
	assert.Equal(t, FetchFailed, p.FetchState(id))
}

func TestFetchWithRetryEventualSuccess(t *testing.T) {
	ctx := context.Background()
	a := testAssignment(1)
	reader := &fakeAssignments{assignment: a, failBefore: 2}
	store := cache.NewMemoryStore(time.Minute, 0)
	p := newFetchPipeline(t, reader, store)

	got, err := p.FetchAssignmentWithRetry(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, 3, reader.callCount())
	assert.Equal(t, FetchLoaded, p.FetchState(a.ID))
}

func TestFetchServesCacheWhileBackendDown(t *testing.T) {
	ctx := context.Background()
	a := testAssignment(1)
	reader := &fakeAssignments{assignment: a}
	store := cache.NewMemoryStore(time.Minute, 0)
	p := newFetchPipeline(t, reader, store)

	_, err := p.FetchAssignment(ctx, a.ID)
	require.NoError(t, err)

	// Backend goes down; the cached copy still serves.
	reader.mu.Lock()
	reader.failBefore = 1000
	reader.mu.Unlock()

	got, err := p.FetchAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}
