package handler

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edukit/assignio-backend/internal/gate"
	"github.com/edukit/assignio-backend/internal/middleware"
	ws "github.com/edukit/assignio-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams gate state changes to connected clients so the UI can
// show connectivity without polling.
type WSHandler struct {
	g        *gate.Gate
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan any]struct{}
}

// NewWSHandler creates a new WSHandler and subscribes it to the gate.
func NewWSHandler(g *gate.Gate, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	h := &WSHandler{
		g:        g,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		clients:  make(map[chan any]struct{}),
	}
	g.OnStateChange(func(s gate.State) {
		h.broadcast(ws.StateResponse{
			Event:    ws.EventState,
			State:    s.String(),
			Degraded: g.Degraded(),
		})
	})
	return h
}

func (h *WSHandler) broadcast(msg ws.StateResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		send(ch, msg)
	}
}

// send never blocks. A slow consumer drops the message and resyncs from the
// next event.
func send(ch chan any, msg any) {
	select {
	case ch <- msg:
	default:
	}
}

func (h *WSHandler) register() chan any {
	ch := make(chan any, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *WSHandler) unregister(ch chan any) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// ConnectivityStream godoc
// WS /ws/v1/connectivity
// Upgrades to WebSocket and pushes every gate state transition. The client
// can send {"action":"retry"} to request a manual reconnect.
func (h *WSHandler) ConnectivityStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Int("user_id", claims.UserID).Logger()
	wsLog.Info().Msg("Client connected")

	events := h.register()
	defer h.unregister(events)

	// Snapshot first so the client renders immediately.
	ws.WriteTyped(conn, ws.StateResponse{
		Event:    ws.EventState,
		State:    h.g.State().String(),
		Degraded: h.g.Degraded(),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ws.RequestPayload
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}

			// All writes go through the events channel; gorilla allows a
			// single concurrent writer.
			switch msg.Action {
			case ws.ActionPing:
				send(events, ws.PongResponse{Event: ws.EventPong})
			case ws.ActionRetry:
				h.g.RetryConnection()
			default:
				wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
				send(events, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
			}
		}
	}()

	for {
		select {
		case msg := <-events:
			if err := ws.WriteTyped(conn, msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
