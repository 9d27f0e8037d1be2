package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/edukit/assignio-backend/internal/backend"
	"github.com/edukit/assignio-backend/internal/model"
)

// ErrNotFound indicates the requested record does not exist remotely.
var ErrNotFound = errors.New("repository: not found")

// AssignmentRepository reads assignments through the narrow DataSource
// capability so the pipeline never assumes a concrete backend protocol.
type AssignmentRepository struct {
	ds backend.DataSource
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(ds backend.DataSource) *AssignmentRepository {
	return &AssignmentRepository{ds: ds}
}

// GetByID retrieves an assignment with its questions in presentation order.
func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	rows, err := r.ds.Read(ctx, "assignments", backend.Filter{"id": id})
	if err != nil {
		return nil, fmt.Errorf("read assignment: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}

	a, err := assignmentFromRow(rows[0])
	if err != nil {
		return nil, err
	}

	qrows, err := r.ds.Read(ctx, "questions", backend.Filter{"assignment_id": id})
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	a.Questions = make([]model.Question, 0, len(qrows))
	for _, qr := range qrows {
		q, err := questionFromRow(qr)
		if err != nil {
			return nil, err
		}
		a.Questions = append(a.Questions, q)
	}

	return a, nil
}

// ListPublished returns every published assignment without questions, used
// for cache prewarming.
func (r *AssignmentRepository) ListPublished(ctx context.Context) ([]model.Assignment, error) {
	rows, err := r.ds.Read(ctx, "assignments", backend.Filter{"status": string(model.AssignmentStatusPublished)})
	if err != nil {
		return nil, fmt.Errorf("list published assignments: %w", err)
	}

	out := make([]model.Assignment, 0, len(rows))
	for _, row := range rows {
		a, err := assignmentFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func assignmentFromRow(row backend.Row) (*model.Assignment, error) {
	id, err := rowUUID(row, "id")
	if err != nil {
		return nil, err
	}
	title, err := rowString(row, "title")
	if err != nil {
		return nil, err
	}
	status, err := rowString(row, "status")
	if err != nil {
		return nil, err
	}
	createdAt, err := rowTime(row, "created_at")
	if err != nil {
		return nil, err
	}
	return &model.Assignment{
		ID:        id,
		Title:     title,
		Status:    model.AssignmentStatus(status),
		CreatedAt: createdAt,
	}, nil
}

func questionFromRow(row backend.Row) (model.Question, error) {
	id, err := rowUUID(row, "id")
	if err != nil {
		return model.Question{}, err
	}
	prompt, err := rowString(row, "prompt")
	if err != nil {
		return model.Question{}, err
	}
	position, err := rowInt(row, "position")
	if err != nil {
		return model.Question{}, err
	}
	return model.Question{ID: id, Prompt: prompt, Position: position}, nil
}
