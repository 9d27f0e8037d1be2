package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/middleware"
	"github.com/edukit/assignio-backend/internal/model"
	"github.com/edukit/assignio-backend/internal/repository"
	"github.com/edukit/assignio-backend/internal/response"
	"github.com/edukit/assignio-backend/internal/service"
	"github.com/edukit/assignio-backend/internal/session"
	"github.com/edukit/assignio-backend/internal/validator"
)

// SessionHandler handles the assignment attempt lifecycle: start, record
// answers, submit, resume.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Start godoc
// POST /api/v1/assignments/:assignment_id/sessions
// Starts or rejoins an attempt (idempotent per user and assignment).
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, err := h.sessionService.Start(c.Request.Context(), claims.UserID, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAssignmentNotAvailable)
			return
		}
		failFetch(c, err)
		return
	}

	response.Success(c, http.StatusOK, sessionState(sess))
}

// RecordResponse godoc
// PUT /api/v1/assignments/:assignment_id/sessions/responses
// Saves one answer. Later answers for the same question overwrite earlier ones.
func (h *SessionHandler) RecordResponse(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RecordResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, ok := h.sessionService.Get(claims.UserID, assignmentID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotStarted)
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	resp := model.Response{
		QuestionID: questionID,
		Payload:    req.Payload,
		IsCorrect:  req.IsCorrect,
	}
	if err := h.sessionService.RecordResponse(c.Request.Context(), sess, resp); err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Submit godoc
// POST /api/v1/assignments/:assignment_id/sessions/submit
// Finalizes the attempt. Safe to call again after a failure; a repeat call
// while one is in flight is rejected.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, ok := h.sessionService.Get(claims.UserID, assignmentID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotStarted)
		return
	}

	score, err := h.sessionService.Submit(c.Request.Context(), sess)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSubmissionConflict):
			response.Fail(c, http.StatusConflict, response.ErrSubmissionConflict)
		case errors.Is(err, gate.ErrOperationTimeout):
			response.Fail(c, http.StatusGatewayTimeout, response.ErrOperationTimeout)
		case errors.Is(err, session.ErrSubmissionFailed):
			response.Fail(c, http.StatusBadGateway, response.ErrSubmissionFailed)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status": string(model.SubmissionStatusSubmitted),
		"score":  score,
	})
}

// State godoc
// GET /api/v1/assignments/:assignment_id/sessions/state
// Returns the live session so a reloaded client can resume.
func (h *SessionHandler) State(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	sess, ok := h.sessionService.Get(claims.UserID, assignmentID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotStarted)
		return
	}

	response.Success(c, http.StatusOK, sessionState(sess))
}

// Reset godoc
// POST /api/v1/reset
// Drops all live sessions and clears the cache. Called on logout.
func (h *SessionHandler) Reset(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessionService.Reset(c.Request.Context()); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "reset"})
}

func sessionState(sess *session.Session) gin.H {
	state := gin.H{
		"submission_id":   sess.SubmissionID,
		"assignment_id":   sess.AssignmentID,
		"status":          sess.Status(),
		"total_questions": sess.TotalQuestions,
		"responses":       sess.Responses(),
	}
	if sess.Status() == model.SubmissionStatusSubmitted {
		state["score"] = sess.Score()
	}
	return state
}
