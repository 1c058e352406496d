package audit

import "time"

// Action labels the lifecycle operation that produced an event.
type Action string

const (
	ActionSubmitted  Action = "submitted"
	ActionFrozen     Action = "frozen"
	ActionMinted     Action = "minted"
	ActionSettled    Action = "settled"
	ActionDisputed   Action = "disputed"
	ActionClassified Action = "classified"
)

// Event is emitted from lifecycle transitions to capture key actions. Keep it
// transport-agnostic so stores and sinks (memory, Kafka) can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RecordID  string    `json:"record_id"`
	Actor     string    `json:"actor,omitempty"`
	Action    Action    `json:"action"`
	FromState string    `json:"from_state,omitempty"`
	ToState   string    `json:"to_state,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}
