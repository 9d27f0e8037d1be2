// Package session implements the per-attempt pipeline on top of the
// readiness gate and the TTL cache: assignment fetch with cache fallback and
// bounded retry, and idempotent submission with an at-most-one-in-flight
// guarantee per session.
package session

import (
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/edukit/assignio-backend/internal/model"
)

var (
	// ErrSubmissionConflict rejects a submit while another one is already
	// in flight for the same session. Never retried automatically.
	ErrSubmissionConflict = errors.New("session: submission already in flight")

	// ErrSubmissionFailed indicates the remote insert/update failed. The
	// session moves to Failed and the caller may retry; the write is
	// idempotent on the remote side.
	ErrSubmissionFailed = errors.New("session: submission failed")

	// ErrSessionClosed rejects response changes once the session has left
	// Pending: the submitted response set is the scoring input and must
	// not drift from the remote record.
	ErrSessionClosed = errors.New("session: attempt is no longer pending")
)

// Session is one user's live attempt at an assignment. The SubmissionID is
// assigned once when the attempt starts and reused on every resubmission.
// Sessions hold no remote state of their own; everything durable lives behind
// the submission repository.
type Session struct {
	ID           uuid.UUID
	AssignmentID uuid.UUID
	UserID       int
	SubmissionID uuid.UUID

	// TotalQuestions is the assignment's question count, the scoring
	// denominator.
	TotalQuestions int

	mu        sync.Mutex
	responses map[uuid.UUID]model.Response
	visited   map[uuid.UUID]bool
	status    model.SubmissionStatus
	score     int

	// submitting is the in-flight guard: a re-entrancy flag, not a lock.
	submitting bool
}

// New creates a pending Session bound to an already-created remote
// submission record.
func New(submission *model.Submission, totalQuestions int) *Session {
	s := &Session{
		ID:             uuid.New(),
		AssignmentID:   submission.AssignmentID,
		UserID:         submission.UserID,
		SubmissionID:   submission.ID,
		TotalQuestions: totalQuestions,
		responses:      make(map[uuid.UUID]model.Response),
		visited:        make(map[uuid.UUID]bool),
		status:         model.SubmissionStatusPending,
	}
	if submission.Status == model.SubmissionStatusSubmitted {
		s.status = model.SubmissionStatusSubmitted
		if submission.Score != nil {
			s.score = int(math.Round(*submission.Score))
		}
	}
	return s
}

// Status returns the session's current status.
func (s *Session) Status() model.SubmissionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Score returns the final score; meaningful only once status is Submitted.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Visit marks a question as reached by the user. A visited question that is
// never answered still counts — as incorrect — in the submitted set.
func (s *Session) Visit(questionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited[questionID] = true
}

// RecordResponse stores the user's answer for a question. Later answers for
// the same question overwrite the prior entry (last-write-wins per question).
// Recording is rejected once the session has left Pending.
func (s *Session) RecordResponse(resp model.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SubmissionStatusPending {
		return ErrSessionClosed
	}

	s.visited[resp.QuestionID] = true
	s.responses[resp.QuestionID] = resp
	return nil
}

// Responses returns a snapshot of the recorded responses.
func (s *Session) Responses() []model.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Response, 0, len(s.responses))
	for _, r := range s.responses {
		out = append(out, r)
	}
	return out
}

// assemble builds the response set to submit: every recorded answer, plus a
// synthesized incorrect response for every visited-but-unanswered question.
// An unanswered-but-visited question always counts as incorrect, never
// omitted. Must be called with s.mu held.
func (s *Session) assemble() []model.Response {
	out := make([]model.Response, 0, len(s.visited))
	for qid := range s.visited {
		if r, ok := s.responses[qid]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, model.Response{QuestionID: qid, IsCorrect: false})
	}
	return out
}

// ComputeScore returns round(100 * correct / total) with a zero-question
// assignment defined to score 0.
func ComputeScore(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}
