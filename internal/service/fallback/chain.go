package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/internal/model/chat"
)

const conversationTemplate = "{conversation}"

// ChainResponder runs the prompt through an eino chain ending in any chat
// model, such as the Ark model built from configuration.
type ChainResponder struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	profile      assistant.Profile
	historyLimit int
	log          *logrus.Entry
}

// NewChainResponder compiles the system + conversation template in front of
// chatModel.
func NewChainResponder(ctx context.Context, chatModel model.BaseChatModel, profile assistant.Profile, historyLimit int, log *logrus.Entry) (*ChainResponder, error) {
	if chatModel == nil {
		return nil, ErrConfigMissing
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage(conversationTemplate),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile fallback chain: %w", err)
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &ChainResponder{
		chain:        runnable,
		profile:      profile,
		historyLimit: historyLimit,
		log:          log,
	}, nil
}

// Reply implements Responder.
func (r *ChainResponder) Reply(ctx context.Context, userMessage string, history []chat.Message) (Reply, error) {
	p := BuildPrompt(r.profile, history, userMessage, r.historyLimit)

	response, err := r.chain.Invoke(ctx, map[string]any{
		"system":       p.System,
		"conversation": p.Conversation,
	})
	if err != nil {
		return Reply{}, Classify(fmt.Errorf("failed to run fallback chain: %w", err))
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return Reply{}, fmt.Errorf("%w: empty model response", ErrUnavailable)
	}

	r.log.WithField("length", len(response.Content)).Debug("fallback chain replied")
	return ParseReply(response.Content), nil
}
