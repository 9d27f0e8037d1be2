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
	"github.com/edukit/assignio-backend/internal/model"
)

// fakeSubmissions records the remote write side of the two-phase submit.
type fakeSubmissions struct {
	mu            sync.Mutex
	upsertBatches [][]model.Response
	completeCalls int
	upsertErr     error
	completeErr   error

	// blockUpsert, when set, is received from before the upsert returns;
	// lets tests hold a submission in flight.
	blockUpsert chan struct{}
}

func (f *fakeSubmissions) UpsertResponses(_ context.Context, _ uuid.UUID, responses []model.Response) error {
	f.mu.Lock()
	block := f.blockUpsert
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	batch := make([]model.Response, len(responses))
	copy(batch, responses)
	f.upsertBatches = append(f.upsertBatches, batch)
	return nil
}

func (f *fakeSubmissions) Complete(_ context.Context, id uuid.UUID, score float64) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &model.Submission{ID: id, Status: model.SubmissionStatusSubmitted, Score: &score}, nil
}

func (f *fakeSubmissions) batches() [][]model.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertBatches
}

func newSubmitPipeline(t *testing.T, subs *fakeSubmissions) *Pipeline {
	t.Helper()
	store := cache.NewMemoryStore(time.Minute, 0)
	return NewPipeline(store, readyGate(t), &fakeAssignments{}, subs, fastRetry(), zerolog.Nop())
}

func newPendingSession(total int) *Session {
	return New(&model.Submission{
		ID:           uuid.New(),
		AssignmentID: uuid.New(),
		UserID:       7,
		Status:       model.SubmissionStatusPending,
		StartedAt:    time.Now(),
	}, total)
}

func TestComputeScore(t *testing.T) {
	assert.Equal(t, 60, ComputeScore(3, 5))
	assert.Equal(t, 0, ComputeScore(0, 0), "zero questions must not divide by zero")
	assert.Equal(t, 100, ComputeScore(5, 5))
	assert.Equal(t, 67, ComputeScore(2, 3), "rounds half up")
	assert.Equal(t, 33, ComputeScore(1, 3))
}

func TestSubmitComputesScore(t *testing.T) {
	subs := &fakeSubmissions{}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(5)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordResponse(model.Response{
			QuestionID: uuid.New(),
			Payload:    "answer",
			IsCorrect:  i < 3,
		}))
	}

	score, err := p.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 60, score)
	assert.Equal(t, model.SubmissionStatusSubmitted, s.Status())
	assert.Equal(t, 1, subs.completeCalls)
}

func TestSubmitZeroQuestions(t *testing.T) {
	subs := &fakeSubmissions{}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(0)

	score, err := p.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestSubmitIncludesVisitedUnansweredAsIncorrect(t *testing.T) {
	subs := &fakeSubmissions{}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(3)

	q1, q3 := uuid.New(), uuid.New()
	require.NoError(t, s.RecordResponse(model.Response{QuestionID: q1, Payload: "a", IsCorrect: true}))
	// Q3 is reached but never answered.
	s.Visit(q3)

	score, err := p.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 33, score)

	batches := subs.batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2, "visited-but-unanswered question must be included")

	var sawQ3 bool
	for _, r := range batches[0] {
		if r.QuestionID == q3 {
			sawQ3 = true
			assert.False(t, r.IsCorrect, "unanswered question always counts as incorrect")
		}
	}
	assert.True(t, sawQ3)
}

func TestSubmitConflictWhileInFlight(t *testing.T) {
	subs := &fakeSubmissions{blockUpsert: make(chan struct{})}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(1)
	require.NoError(t, s.RecordResponse(model.Response{QuestionID: uuid.New(), IsCorrect: true}))

	firstDone := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), s)
		firstDone <- err
	}()

	require.Eventually(t, func() bool {
		return s.Status() == model.SubmissionStatusSubmitting
	}, time.Second, time.Millisecond)

	// Second submit while the first is in flight: rejected, not queued.
	_, err := p.Submit(context.Background(), s)
	assert.ErrorIs(t, err, ErrSubmissionConflict)

	close(subs.blockUpsert)
	require.NoError(t, <-firstDone)

	assert.Len(t, subs.batches(), 1, "exactly one remote insert batch")
}

func TestSubmitFailedPhaseOneIsRetryable(t *testing.T) {
	subs := &fakeSubmissions{upsertErr: errors.New("insert rejected")}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(1)
	q := uuid.New()
	require.NoError(t, s.RecordResponse(model.Response{QuestionID: q, IsCorrect: true}))

	_, err := p.Submit(context.Background(), s)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, model.SubmissionStatusFailed, s.Status())
	assert.Equal(t, 0, subs.completeCalls, "phase 2 must not run after phase 1 failure")

	// Manual retry re-runs both phases.
	subs.mu.Lock()
	subs.upsertErr = nil
	subs.mu.Unlock()

	score, err := p.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 100, score)
	assert.Equal(t, model.SubmissionStatusSubmitted, s.Status())
	assert.Len(t, subs.batches(), 1)
}

func TestSubmitFailedPhaseTwoIsRetryable(t *testing.T) {
	subs := &fakeSubmissions{completeErr: errors.New("update rejected")}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(2)
	require.NoError(t, s.RecordResponse(model.Response{QuestionID: uuid.New(), IsCorrect: true}))

	_, err := p.Submit(context.Background(), s)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Equal(t, model.SubmissionStatusFailed, s.Status())

	subs.mu.Lock()
	subs.completeErr = nil
	subs.mu.Unlock()

	score, err := p.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 50, score)

	// Phase 1 re-ran idempotently: same batch keyed on
	// (submission_id, question_id) both times.
	assert.Len(t, subs.batches(), 2)
	assert.Equal(t, subs.batches()[0], subs.batches()[1])
}

func TestSubmitAfterSuccessReturnsScoreWithoutRemoteCalls(t *testing.T) {
	subs := &fakeSubmissions{}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(1)
	require.NoError(t, s.RecordResponse(model.Response{QuestionID: uuid.New(), IsCorrect: true}))

	first, err := p.Submit(context.Background(), s)
	require.NoError(t, err)

	second, err := p.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, subs.batches(), 1)
	assert.Equal(t, 1, subs.completeCalls)
}

func TestRecordResponseLastWriteWinsPerQuestion(t *testing.T) {
	s := newPendingSession(1)
	q := uuid.New()

	require.NoError(t, s.RecordResponse(model.Response{QuestionID: q, Payload: "first", IsCorrect: false}))
	require.NoError(t, s.RecordResponse(model.Response{QuestionID: q, Payload: "second", IsCorrect: true}))

	responses := s.Responses()
	require.Len(t, responses, 1)
	assert.Equal(t, "second", responses[0].Payload)
	assert.True(t, responses[0].IsCorrect)
}

func TestRecordResponseRejectedAfterSubmit(t *testing.T) {
	subs := &fakeSubmissions{}
	p := newSubmitPipeline(t, subs)
	s := newPendingSession(1)
	require.NoError(t, s.RecordResponse(model.Response{QuestionID: uuid.New(), IsCorrect: true}))

	_, err := p.Submit(context.Background(), s)
	require.NoError(t, err)

	err = s.RecordResponse(model.Response{QuestionID: uuid.New(), Payload: "late"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionFromSubmittedRecord(t *testing.T) {
	score := 80.0
	s := New(&model.Submission{
		ID:           uuid.New(),
		AssignmentID: uuid.New(),
		UserID:       1,
		Status:       model.SubmissionStatusSubmitted,
		Score:        &score,
	}, 5)

	assert.Equal(t, model.SubmissionStatusSubmitted, s.Status())
	assert.Equal(t, 80, s.Score())
}
