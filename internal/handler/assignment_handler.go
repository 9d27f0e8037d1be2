package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/repository"
	"github.com/edukit/assignio-backend/internal/response"
	"github.com/edukit/assignio-backend/internal/service"
)

// AssignmentHandler handles assignment fetching.
type AssignmentHandler struct {
	assignmentService *service.AssignmentService
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(assignmentService *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: assignmentService}
}

// Get godoc
// GET /api/v1/assignments/:assignment_id
// Returns the assignment, served from cache when the backend is down.
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignmentID, err := uuid.Parse(c.Param("assignment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	assignment, err := h.assignmentService.Get(c.Request.Context(), assignmentID)
	if err != nil {
		failFetch(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"assignment":  assignment,
		"fetch_state": h.assignmentService.FetchState(assignmentID).String(),
	})
}

// failFetch maps fetch path errors onto the error taxonomy.
func failFetch(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, gate.ErrOperationTimeout):
		response.Fail(c, http.StatusGatewayTimeout, response.ErrOperationTimeout)
	case errors.Is(err, gate.ErrConnection):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrBackendUnavailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
