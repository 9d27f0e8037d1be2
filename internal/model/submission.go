package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates submission attempt states.
type SubmissionStatus string

const (
	SubmissionStatusPending    SubmissionStatus = "PENDING"
	SubmissionStatusSubmitting SubmissionStatus = "SUBMITTING"
	SubmissionStatusSubmitted  SubmissionStatus = "SUBMITTED"
	SubmissionStatusFailed     SubmissionStatus = "FAILED"
)

// Submission represents a user's attempt at an assignment. The ID is assigned
// once when the attempt starts and is reused on every resubmission so the
// remote records stay idempotency-stable.
type Submission struct {
	ID           uuid.UUID        `json:"id"`
	AssignmentID uuid.UUID        `json:"assignment_id"`
	UserID       int              `json:"user_id"`
	Status       SubmissionStatus `json:"status"`
	Score        *float64         `json:"score,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}

// Response is a user's answer to one question. Within a session later answers
// for the same question overwrite the prior entry (last-write-wins per
// question); the set is never globally ordered.
type Response struct {
	QuestionID uuid.UUID `json:"question_id"`
	Payload    string    `json:"payload"`
	IsCorrect  bool      `json:"is_correct"`
}

// RecordResponseRequest is the payload for saving an answer in an active session.
type RecordResponseRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	Payload    string `json:"payload" binding:"required"`
	IsCorrect  bool   `json:"is_correct"`
}
