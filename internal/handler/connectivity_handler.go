package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/response"
)

// ConnectivityHandler exposes the readiness gate over HTTP for clients that
// poll instead of holding a WebSocket.
type ConnectivityHandler struct {
	g *gate.Gate
}

// NewConnectivityHandler creates a new ConnectivityHandler.
func NewConnectivityHandler(g *gate.Gate) *ConnectivityHandler {
	return &ConnectivityHandler{g: g}
}

// GetState godoc
// GET /api/v1/connectivity
// Returns the current gate state and whether it is running degraded.
func (h *ConnectivityHandler) GetState(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"state":    h.g.State().String(),
		"degraded": h.g.Degraded(),
	})
}

// Retry godoc
// POST /api/v1/connectivity/retry
// Requests a manual reconnect. Requests inside the debounce window or during
// an active cycle are absorbed, not queued.
func (h *ConnectivityHandler) Retry(c *gin.Context) {
	accepted := h.g.RetryConnection()
	response.Success(c, http.StatusAccepted, gin.H{
		"accepted": accepted,
		"state":    h.g.State().String(),
	})
}
