package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edukit/assignio-backend/internal/cache"
	"github.com/edukit/assignio-backend/internal/config"
	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/model"
	"github.com/edukit/assignio-backend/internal/repository"
	"github.com/edukit/assignio-backend/internal/session"
)

// autosavePayload is the wire shape pushed to the persist queue for the
// write-behind worker.
type autosavePayload struct {
	SubmissionID string `json:"submission_id"`
	QuestionID   string `json:"question_id"`
	Payload      string `json:"payload"`
	IsCorrect    bool   `json:"is_correct"`
}

// SessionService owns the in-memory session registry. Starting a session is
// idempotent per (user, assignment); rejoining returns the live session with
// its recorded responses intact.
type SessionService struct {
	pipeline    *session.Pipeline
	assignments *AssignmentService
	submissions *repository.SubmissionRepository
	g           *gate.Gate
	store       cache.Store
	rdb         *redis.Client
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	pipeline *session.Pipeline,
	assignments *AssignmentService,
	submissions *repository.SubmissionRepository,
	g *gate.Gate,
	store cache.Store,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		pipeline:    pipeline,
		assignments: assignments,
		submissions: submissions,
		g:           g,
		store:       store,
		rdb:         rdb,
		log:         log.With().Str("component", "session_service").Logger(),
		sessions:    make(map[string]*session.Session),
	}
}

func sessionKey(userID int, assignmentID uuid.UUID) string {
	return fmt.Sprintf("%d:%s", userID, assignmentID)
}

// Start opens (or rejoins) a session for the user on the given assignment.
// The backing submission row is created with ON CONFLICT DO NOTHING, so
// duplicate starts converge on the same submission.
func (s *SessionService) Start(ctx context.Context, userID int, assignmentID uuid.UUID) (*session.Session, error) {
	key := sessionKey(userID, assignmentID)

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	assignment, err := s.assignments.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.Status != model.AssignmentStatusPublished {
		return nil, repository.ErrNotFound
	}

	sub, err := gate.Execute(ctx, s.g, func(ctx context.Context) (*model.Submission, error) {
		return s.submissions.Create(ctx, &model.Submission{
			ID:           uuid.New(),
			AssignmentID: assignmentID,
			UserID:       userID,
			Status:       model.SubmissionStatusPending,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	sess := session.New(sub, len(assignment.Questions))

	// Seed with previously autosaved responses so a reload resumes where
	// the user left off.
	if sub.Status == model.SubmissionStatusPending {
		saved, err := gate.Execute(ctx, s.g, func(ctx context.Context) ([]model.Response, error) {
			return s.submissions.ListResponses(ctx, sub.ID)
		})
		if err != nil {
			s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Could not restore autosaved responses")
		} else {
			for _, r := range saved {
				sess.Visit(r.QuestionID)
				if err := sess.RecordResponse(r); err != nil {
					break
				}
			}
		}
	}

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		// Another Start won the race; the submission row is shared anyway.
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[key] = sess
	s.mu.Unlock()

	s.log.Info().
		Int("user_id", userID).
		Str("assignment_id", assignmentID.String()).
		Str("submission_id", sub.ID.String()).
		Msg("Session started")
	return sess, nil
}

// Get returns the live session for the user on the assignment, if any.
func (s *SessionService) Get(userID int, assignmentID uuid.UUID) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(userID, assignmentID)]
	return sess, ok
}

// RecordResponse records an answer in the session and enqueues it for
// write-behind persistence. The enqueue is best-effort; the submit pipeline
// upserts every response again, so a lost autosave costs nothing but resume
// fidelity.
func (s *SessionService) RecordResponse(ctx context.Context, sess *session.Session, resp model.Response) error {
	sess.Visit(resp.QuestionID)
	if err := sess.RecordResponse(resp); err != nil {
		return err
	}

	payload, err := json.Marshal(autosavePayload{
		SubmissionID: sess.SubmissionID.String(),
		QuestionID:   resp.QuestionID.String(),
		Payload:      resp.Payload,
		IsCorrect:    resp.IsCorrect,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Autosave payload marshal failed")
		return nil
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResponsesQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Autosave enqueue failed")
	}
	return nil
}

// Visit marks a question as seen without recording an answer.
func (s *SessionService) Visit(sess *session.Session, questionID uuid.UUID) {
	sess.Visit(questionID)
}

// Submit finalizes the session through the two-phase pipeline and returns the
// score.
func (s *SessionService) Submit(ctx context.Context, sess *session.Session) (int, error) {
	return s.pipeline.Submit(ctx, sess)
}

// Reset drops every live session and clears the cache. Used on logout.
func (s *SessionService) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	s.log.Info().Msg("Sessions and cache reset")
	return nil
}
