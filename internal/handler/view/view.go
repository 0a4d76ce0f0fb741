// Package view shapes engine state for the widget: every message carries
// its typed display lines next to the raw content.
package view

import (
	"time"

	"github.com/retailbot/support-widget/internal/model/chat"
	"github.com/retailbot/support-widget/internal/render"
	"github.com/retailbot/support-widget/internal/service/engine"
)

// Message is a log entry as the widget draws it.
type Message struct {
	ID        string        `json:"id"`
	Role      chat.Role     `json:"role"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	Lines     []render.Line `json:"lines"`
}

// Snapshot is the full widget state sent on connect and after a reset.
type Snapshot struct {
	SessionID    string     `json:"sessionId"`
	State        chat.State `json:"state"`
	Status       string     `json:"status"`
	InputEnabled bool       `json:"inputEnabled"`
	Messages     []Message  `json:"messages"`
}

// StateChange is sent whenever the session state moves.
type StateChange struct {
	SessionID    string     `json:"sessionId"`
	State        chat.State `json:"state"`
	Status       string     `json:"status"`
	InputEnabled bool       `json:"inputEnabled"`
}

// NewMessage splits the content into display lines.
func NewMessage(msg chat.Message) Message {
	return Message{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Lines:     render.Lines(msg.Content),
	}
}

// NewSnapshot converts an engine snapshot.
func NewSnapshot(s engine.Snapshot) Snapshot {
	messages := make([]Message, len(s.Messages))
	for i, msg := range s.Messages {
		messages[i] = NewMessage(msg)
	}
	return Snapshot{
		SessionID:    s.SessionID,
		State:        s.State,
		Status:       s.State.Status(),
		InputEnabled: s.State.AcceptsInput(),
		Messages:     messages,
	}
}

// NewStateChange derives the header status and input flag from state.
func NewStateChange(sessionID string, state chat.State) StateChange {
	return StateChange{
		SessionID:    sessionID,
		State:        state,
		Status:       state.Status(),
		InputEnabled: state.AcceptsInput(),
	}
}

// Frame is the wire form of one engine event.
type Frame struct {
	Type string
	Data interface{}
}

// NewFrame maps an engine event to its widget frame.
func NewFrame(ev engine.Event) Frame {
	switch ev.Type {
	case engine.EventMessage:
		return Frame{Type: "message", Data: NewMessage(*ev.Message)}
	case engine.EventReset:
		return Frame{Type: "snapshot", Data: NewSnapshot(*ev.Snapshot)}
	default:
		return Frame{Type: "state", Data: NewStateChange(ev.SessionID, ev.State)}
	}
}
