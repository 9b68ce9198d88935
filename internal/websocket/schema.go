package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`

	// Autosave fields.
	QuestionID string          `json:"question_id,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`

	// Submit fields. Auto marks a client-side timer expiry.
	Auto bool `json:"auto,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

// SubmittedResponse reports the attempt's final state. Score is only set
// when the questionnaire was fully auto-gradable.
type SubmittedResponse struct {
	Event Event    `json:"event"`
	State string   `json:"state"`
	Late  bool     `json:"late"`
	Score *float64 `json:"score,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event    `json:"event"`
	RemainingSeconds *float64 `json:"remaining_seconds,omitempty"`
}
