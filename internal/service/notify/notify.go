// Package notify reports engine incidents to collaborators outside the
// conversation: operator logs, toast channels and the hand-off stream.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/model/chat"
	"github.com/retailbot/support-widget/internal/service/fallback"
)

// Handoff is the signal emitted when a conversation is escalated.
type Handoff struct {
	SessionID   string         `json:"session_id"`
	RequestedAt time.Time      `json:"requested_at"`
	Source      string         `json:"source"`
	Transcript  []chat.Message `json:"transcript"`
}

// Notifier receives out-of-band engine notifications. Implementations must
// not block for long and must never fail the conversation.
type Notifier interface {
	FallbackFailed(ctx context.Context, sessionID string, err error)
	HandoffRequested(ctx context.Context, handoff Handoff)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) FallbackFailed(context.Context, string, error) {}
func (Nop) HandoffRequested(context.Context, Handoff) {}

// LogNotifier writes notifications to a logrus entry.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) FallbackFailed(_ context.Context, sessionID string, err error) {
	n.log.WithError(err).WithFields(logrus.Fields{
		"session_id": sessionID,
		"kind":       fallback.Kind(err),
	}).Warn("Fallback responder failed")
}

func (n *LogNotifier) HandoffRequested(_ context.Context, handoff Handoff) {
	n.log.WithFields(logrus.Fields{
		"session_id": handoff.SessionID,
		"source":     handoff.Source,
		"messages":   len(handoff.Transcript),
	}).Info("Conversation handed off to human agent")
}

// Multi fans notifications out to several notifiers in order.
type Multi []Notifier

func (m Multi) FallbackFailed(ctx context.Context, sessionID string, err error) {
	for _, n := range m {
		n.FallbackFailed(ctx, sessionID, err)
	}
}

func (m Multi) HandoffRequested(ctx context.Context, handoff Handoff) {
	for _, n := range m {
		n.HandoffRequested(ctx, handoff)
	}
}
