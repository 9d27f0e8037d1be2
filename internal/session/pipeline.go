package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edukit/assignio-backend/internal/cache"
	"github.com/edukit/assignio-backend/internal/config"
	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/model"
)

// FetchState tracks one assignment's fetch lifecycle.
type FetchState int32

const (
	FetchNotRequested FetchState = iota
	FetchInProgress
	FetchLoaded
	FetchFailed
)

func (s FetchState) String() string {
	switch s {
	case FetchNotRequested:
		return "NOT_REQUESTED"
	case FetchInProgress:
		return "FETCHING"
	case FetchLoaded:
		return "LOADED"
	case FetchFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// AssignmentReader is the remote read capability the fetch path needs.
type AssignmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assignment, error)
}

// SubmissionStore is the remote write capability the submit path needs.
type SubmissionStore interface {
	UpsertResponses(ctx context.Context, submissionID uuid.UUID, responses []model.Response) error
	Complete(ctx context.Context, submissionID uuid.UUID, score float64) (*model.Submission, error)
}

// RetryPolicy drives caller-side fetch retry: the remote read itself is never
// retried internally.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	DelayCap    time.Duration
}

// DefaultRetryPolicy mirrors the production tuning.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   1500 * time.Millisecond,
		Multiplier:  1.5,
		DelayCap:    5 * time.Second,
	}
}

// Pipeline coordinates fetch and submit against the cache, the readiness
// gate, and the remote repositories.
type Pipeline struct {
	store       cache.Store
	g           *gate.Gate
	assignments AssignmentReader
	submissions SubmissionStore
	retry       RetryPolicy
	log         zerolog.Logger

	mu      sync.Mutex
	fetches map[uuid.UUID]FetchState
}

// NewPipeline creates a Pipeline.
func NewPipeline(
	store cache.Store,
	g *gate.Gate,
	assignments AssignmentReader,
	submissions SubmissionStore,
	retry RetryPolicy,
	log zerolog.Logger,
) *Pipeline {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Pipeline{
		store:       store,
		g:           g,
		assignments: assignments,
		submissions: submissions,
		retry:       retry,
		log:         log.With().Str("component", "session_pipeline").Logger(),
		fetches:     make(map[uuid.UUID]FetchState),
	}
}

// FetchState reports the fetch lifecycle for an assignment.
func (p *Pipeline) FetchState(assignmentID uuid.UUID) FetchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[assignmentID]
}

func (p *Pipeline) setFetchState(assignmentID uuid.UUID, s FetchState) {
	p.mu.Lock()
	p.fetches[assignmentID] = s
	p.mu.Unlock()
}

// FetchAssignment runs one pass of the fetch path: cache hit short-circuits
// the network entirely; a miss goes to the backend through the readiness
// gate, and the result is written through to the cache best-effort.
func (p *Pipeline) FetchAssignment(ctx context.Context, assignmentID uuid.UUID) (*model.Assignment, error) {
	key := config.CacheKey.AssignmentKey(assignmentID.String())

	if raw, err := p.store.Get(ctx, key); err == nil {
		var a model.Assignment
		if err := json.Unmarshal(raw, &a); err == nil {
			p.setFetchState(assignmentID, FetchLoaded)
			return &a, nil
		}
		// Corrupt entry: drop it and fall through to the network.
		_ = p.store.Remove(ctx, key)
	}

	p.setFetchState(assignmentID, FetchInProgress)

	a, err := gate.Execute(ctx, p.g, func(ctx context.Context) (*model.Assignment, error) {
		return p.assignments.GetByID(ctx, assignmentID)
	})
	if err != nil {
		p.setFetchState(assignmentID, FetchFailed)
		return nil, err
	}

	if raw, err := json.Marshal(a); err == nil {
		if err := p.store.Set(ctx, key, raw); err != nil {
			// Cache failure means "proceed without caching", never a
			// hard error.
			p.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}

	p.setFetchState(assignmentID, FetchLoaded)
	return a, nil
}

// FetchAssignmentWithRetry re-invokes FetchAssignment with exponential
// backoff up to the policy's attempt budget, then reports a terminal failure
// rather than retrying forever.
func (p *Pipeline) FetchAssignmentWithRetry(ctx context.Context, assignmentID uuid.UUID) (*model.Assignment, error) {
	delay := p.retry.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		a, err := p.FetchAssignment(ctx, assignmentID)
		if err == nil {
			return a, nil
		}
		lastErr = err

		p.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.retry.MaxAttempts).
			Str("assignment_id", assignmentID.String()).
			Msg("Assignment fetch failed")

		if attempt == p.retry.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = time.Duration(float64(delay) * p.retry.Multiplier)
		if delay > p.retry.DelayCap {
			delay = p.retry.DelayCap
		}
	}

	return nil, fmt.Errorf("fetch assignment %s: %w", assignmentID, lastErr)
}

// Submit runs the two-phase idempotent submission for a session. At most one
// submit may be in flight per session; a concurrent call fails with
// ErrSubmissionConflict. A session that already submitted returns its score
// without touching the backend.
//
// Phase 1 upserts the full response set keyed (submission_id, question_id);
// phase 2 marks the submission Submitted with its score. Phase 1 must
// complete before phase 2 is attempted, so a retry after partial failure
// re-runs both phases idempotently. Either failure moves the session to
// Failed, clears the in-flight guard, and surfaces ErrSubmissionFailed.
func (p *Pipeline) Submit(ctx context.Context, s *Session) (int, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return 0, ErrSubmissionConflict
	}
	if s.status == model.SubmissionStatusSubmitted {
		score := s.score
		s.mu.Unlock()
		return score, nil
	}
	s.submitting = true
	s.status = model.SubmissionStatusSubmitting
	responses := s.assemble()
	total := s.TotalQuestions
	s.mu.Unlock()

	correct := 0
	for _, r := range responses {
		if r.IsCorrect {
			correct++
		}
	}
	score := ComputeScore(correct, total)

	_, err := gate.Execute(ctx, p.g, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.submissions.UpsertResponses(ctx, s.SubmissionID, responses)
	})
	if err != nil {
		return 0, p.failSubmit(s, "insert responses", err)
	}

	_, err = gate.Execute(ctx, p.g, func(ctx context.Context) (*model.Submission, error) {
		return p.submissions.Complete(ctx, s.SubmissionID, float64(score))
	})
	if err != nil {
		return 0, p.failSubmit(s, "update status", err)
	}

	s.mu.Lock()
	s.status = model.SubmissionStatusSubmitted
	s.score = score
	s.submitting = false
	s.mu.Unlock()

	// The cached copy of an in-progress attempt is now stale.
	key := config.CacheKey.ResponsesKey(s.AssignmentID.String(), s.UserID)
	if err := p.store.Remove(ctx, key); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Cache invalidation failed")
	}

	p.log.Info().
		Str("submission_id", s.SubmissionID.String()).
		Int("score", score).
		Int("responses", len(responses)).
		Msg("Submission completed")

	return score, nil
}

// failSubmit moves the session to Failed and clears the in-flight guard so
// the caller may retry: the remote writes are idempotent.
func (p *Pipeline) failSubmit(s *Session, phase string, cause error) error {
	s.mu.Lock()
	s.status = model.SubmissionStatusFailed
	s.submitting = false
	s.mu.Unlock()

	p.log.Error().
		Err(cause).
		Str("submission_id", s.SubmissionID.String()).
		Str("phase", phase).
		Msg("Submission failed")

	return fmt.Errorf("%w: %s: %w", ErrSubmissionFailed, phase, cause)
}
