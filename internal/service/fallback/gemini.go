package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/internal/model/chat"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiResponder calls the Gemini API directly.
type GeminiResponder struct {
	models       contentGenerator
	model        string
	profile      assistant.Profile
	historyLimit int
	log          *logrus.Entry
}

// NewGeminiResponder creates a Gemini client for apiKey.
func NewGeminiResponder(ctx context.Context, apiKey, model string, profile assistant.Profile, historyLimit int, log *logrus.Entry) (*GeminiResponder, error) {
	if apiKey == "" || model == "" {
		return nil, ErrConfigMissing
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return newGeminiResponder(client.Models, model, profile, historyLimit, log), nil
}

func newGeminiResponder(models contentGenerator, model string, profile assistant.Profile, historyLimit int, log *logrus.Entry) *GeminiResponder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &GeminiResponder{
		models:       models,
		model:        model,
		profile:      profile,
		historyLimit: historyLimit,
		log:          log,
	}
}

// Reply implements Responder.
func (r *GeminiResponder) Reply(ctx context.Context, userMessage string, history []chat.Message) (Reply, error) {
	p := BuildPrompt(r.profile, history, userMessage, r.historyLimit)

	contents := []*genai.Content{
		genai.NewContentFromText(p.Conversation, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
	}

	result, err := r.models.GenerateContent(ctx, r.model, contents, config)
	if err != nil {
		return Reply{}, classifyWithStatus(fmt.Errorf("GenAI generate failed: %w", err), apiStatus(err))
	}

	text := ""
	if result != nil {
		text = result.Text()
	}
	if strings.TrimSpace(text) == "" {
		return Reply{}, fmt.Errorf("%w: empty model response", ErrUnavailable)
	}

	r.log.WithFields(logrus.Fields{"model": r.model, "length": len(text)}).Debug("gemini replied")
	return ParseReply(text), nil
}

func apiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
