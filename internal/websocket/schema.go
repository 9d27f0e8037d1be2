package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionRetry Action = "retry"
	ActionPing  Action = "ping"
)

// RequestPayload is the single client message shape for the connectivity
// stream.
type RequestPayload struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState Event = "state"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// StateResponse announces the current connectivity state. Degraded means the
// backend opened in fail-open mode after exhausting its retry budget.
type StateResponse struct {
	Event    Event  `json:"event"`
	State    string `json:"state"`
	Degraded bool   `json:"degraded"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
