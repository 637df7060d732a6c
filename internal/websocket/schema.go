package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionClock    Action = "clock"
	ActionPing     Action = "ping"
)

// RequestPayload carries every client action. QID and Answer are only
// set for autosave. Submission is deliberately absent: finalizing an
// attempt happens over the HTTP submit endpoint only.
type RequestPayload struct {
	Action Action `json:"action"`
	QID    string `json:"q_id,omitempty"`
	Answer string `json:"ans,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSuccess Event = "success"
	EventClock   Event = "clock"
	EventPong    Event = "pong"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// ClockResponse reports the server-side remaining time. A nil value
// means the exam has no time limit.
type ClockResponse struct {
	Event            Event    `json:"event"`
	RemainingSeconds *float64 `json:"remaining_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
