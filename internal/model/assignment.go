package model

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus enumerates assignment lifecycle states.
type AssignmentStatus string

const (
	AssignmentStatusDraft     AssignmentStatus = "DRAFT"
	AssignmentStatusPublished AssignmentStatus = "PUBLISHED"
	AssignmentStatusArchived  AssignmentStatus = "ARCHIVED"
)

// Assignment is a published set of questions a user can attempt.
type Assignment struct {
	ID        uuid.UUID        `json:"id"`
	Title     string           `json:"title"`
	Status    AssignmentStatus `json:"status"`
	Questions []Question       `json:"questions,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Question is a single exercise inside an assignment. Rendering semantics
// live entirely on the client; the backend only tracks identity and order.
type Question struct {
	ID       uuid.UUID `json:"id"`
	Prompt   string    `json:"prompt"`
	Position int       `json:"position"`
}
