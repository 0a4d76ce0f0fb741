// Package fallback contains the optional generative responder consulted
// instead of the rule table when a model provider is configured.
package fallback

import (
	"context"
	"strings"

	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/internal/model/chat"
)

// DefaultHistoryLimit is the number of prior log messages sent with a call.
const DefaultHistoryLimit = 10

// Reply is the outcome of a successful call.
type Reply struct {
	Text     string
	Escalate bool
}

// Responder produces a free-form reply for the latest customer message.
// Errors wrap one of ErrConfigMissing, ErrQuotaExceeded, ErrModelNotFound or
// ErrUnavailable.
type Responder interface {
	Reply(ctx context.Context, userMessage string, history []chat.Message) (Reply, error)
}

// Prompt is the provider-neutral request sent to a model.
type Prompt struct {
	System       string
	Conversation string
}

// BuildPrompt serializes the most recent limit messages of history as
// alternating "User:" / "Assistant:" blocks followed by the new message.
func BuildPrompt(profile assistant.Profile, history []chat.Message, userMessage string, limit int) Prompt {
	return Prompt{
		System:       profile.Instruction,
		Conversation: conversationText(FormatHistory(history, limit), userMessage),
	}
}

// FormatHistory renders the tail of a message log for the model.
func FormatHistory(history []chat.Message, limit int) string {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	start := len(history) - limit
	if start < 0 {
		start = 0
	}

	blocks := make([]string, 0, len(history)-start)
	for _, msg := range history[start:] {
		role := "Assistant"
		if msg.IsUser() {
			role = "User"
		}
		blocks = append(blocks, role+": "+msg.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func conversationText(history, userMessage string) string {
	var builder strings.Builder
	builder.WriteString("Conversation History:\n")
	builder.WriteString(history)
	builder.WriteString("\n\nUser: ")
	builder.WriteString(userMessage)
	builder.WriteString("\n\nAssistant:")
	return builder.String()
}

// ParseReply turns raw model output into a Reply. Any occurrence of the
// escalation token requests a hand-off.
func ParseReply(output string) Reply {
	if strings.Contains(output, assistant.EscalationToken) {
		return Reply{Escalate: true}
	}
	return Reply{Text: strings.TrimSpace(output)}
}
