package chat

import "time"

// State is the turn state of a support conversation.
type State string

const (
	StateIdle          State = "IDLE"
	StateAwaitingReply State = "AWAITING_REPLY"
	StateEscalating    State = "ESCALATING"
	StateEscalated     State = "ESCALATED"
)

// AcceptsInput reports whether a new user turn may be submitted.
func (s State) AcceptsInput() bool {
	return s == StateIdle
}

// Status is the one-line header text shown by the widget.
func (s State) Status() string {
	switch s {
	case StateEscalating, StateEscalated:
		return "Connecting to agent..."
	case StateAwaitingReply:
		return "Typing..."
	default:
		return "Online • Typically replies instantly"
	}
}

// Session describes a widget conversation for listings and presentation.
type Session struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
