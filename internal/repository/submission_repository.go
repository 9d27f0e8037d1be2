package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edukit/assignio-backend/internal/backend"
	"github.com/edukit/assignio-backend/internal/model"
)

// SubmissionRepository persists submission attempts and their responses.
// All writes are upsert-safe: the remote side deduplicates on
// (assignment_id, user_id) for submissions and (submission_id, question_id)
// for responses, which is what makes resubmission idempotent.
type SubmissionRepository struct {
	ds backend.DataSource
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(ds backend.DataSource) *SubmissionRepository {
	return &SubmissionRepository{ds: ds}
}

// GetByAssignmentAndUser retrieves the user's submission for an assignment.
func (r *SubmissionRepository) GetByAssignmentAndUser(ctx context.Context, assignmentID uuid.UUID, userID int) (*model.Submission, error) {
	rows, err := r.ds.Read(ctx, "submissions", backend.Filter{
		"assignment_id": assignmentID,
		"user_id":       userID,
	})
	if err != nil {
		return nil, fmt.Errorf("read submission: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("submission for assignment %s user %d: %w", assignmentID, userID, ErrNotFound)
	}
	return submissionFromRow(rows[0])
}

// Create inserts a new pending submission. If the user already has one for
// this assignment the insert is skipped remotely and the existing record is
// returned, making a concurrent or repeated start idempotent.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	row, err := r.ds.Insert(ctx, "submissions", []backend.Row{{
		"id":            s.ID,
		"assignment_id": s.AssignmentID,
		"user_id":       s.UserID,
		"status":        string(model.SubmissionStatusPending),
		"started_at":    s.StartedAt,
	}})
	if err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	if row == nil {
		// Conflict: a submission already exists for this user+assignment.
		return r.GetByAssignmentAndUser(ctx, s.AssignmentID, s.UserID)
	}
	return submissionFromRow(row)
}

// UpsertResponses stores the full response set for a submission. Phase 1 of
// the two-phase submit: rows are keyed (submission_id, question_id) so a
// retried batch overwrites rather than duplicates.
func (r *SubmissionRepository) UpsertResponses(ctx context.Context, submissionID uuid.UUID, responses []model.Response) error {
	if len(responses) == 0 {
		return nil
	}

	rows := make([]backend.Row, len(responses))
	for i, resp := range responses {
		rows[i] = backend.Row{
			"submission_id": submissionID,
			"question_id":   resp.QuestionID,
			"payload":       resp.Payload,
			"is_correct":    resp.IsCorrect,
		}
	}

	if _, err := r.ds.Insert(ctx, "submission_responses", rows); err != nil {
		return fmt.Errorf("upsert responses: %w", err)
	}
	return nil
}

// Complete marks a submission as submitted with its final score. Phase 2 of
// the two-phase submit.
func (r *SubmissionRepository) Complete(ctx context.Context, submissionID uuid.UUID, score float64) (*model.Submission, error) {
	row, err := r.ds.Update(ctx, "submissions", submissionID, backend.Row{
		"status":      string(model.SubmissionStatusSubmitted),
		"score":       score,
		"finished_at": time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("complete submission: %w", err)
	}
	return submissionFromRow(row)
}

// ListResponses returns the stored responses for a submission, used to
// restore an in-progress attempt after a client reload.
func (r *SubmissionRepository) ListResponses(ctx context.Context, submissionID uuid.UUID) ([]model.Response, error) {
	rows, err := r.ds.Read(ctx, "submission_responses", backend.Filter{"submission_id": submissionID})
	if err != nil {
		return nil, fmt.Errorf("read responses: %w", err)
	}

	out := make([]model.Response, 0, len(rows))
	for _, row := range rows {
		questionID, err := rowUUID(row, "question_id")
		if err != nil {
			return nil, err
		}
		payload, err := rowString(row, "payload")
		if err != nil {
			return nil, err
		}
		isCorrect, err := rowBool(row, "is_correct")
		if err != nil {
			return nil, err
		}
		out = append(out, model.Response{QuestionID: questionID, Payload: payload, IsCorrect: isCorrect})
	}
	return out, nil
}

func submissionFromRow(row backend.Row) (*model.Submission, error) {
	id, err := rowUUID(row, "id")
	if err != nil {
		return nil, err
	}
	assignmentID, err := rowUUID(row, "assignment_id")
	if err != nil {
		return nil, err
	}
	userID, err := rowInt(row, "user_id")
	if err != nil {
		return nil, err
	}
	status, err := rowString(row, "status")
	if err != nil {
		return nil, err
	}
	score, err := rowFloatPtr(row, "score")
	if err != nil {
		return nil, err
	}
	startedAt, err := rowTime(row, "started_at")
	if err != nil {
		return nil, err
	}
	finishedAt, err := rowTimePtr(row, "finished_at")
	if err != nil {
		return nil, err
	}
	return &model.Submission{
		ID:           id,
		AssignmentID: assignmentID,
		UserID:       userID,
		Status:       model.SubmissionStatus(status),
		Score:        score,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
	}, nil
}
