package fallback

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/config"
	"github.com/retailbot/support-widget/internal/model/assistant"
)

// NewFromConfig builds the configured responder. It returns nil and no error
// when no provider is requested, and an ErrConfigMissing error when the
// provider lacks credentials.
func NewFromConfig(ctx context.Context, cfg config.FallbackConfig, profile assistant.Profile, historyLimit int, log *logrus.Entry) (Responder, error) {
	if !cfg.Requested() {
		return nil, nil
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: provider %q has no credentials", ErrConfigMissing, cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigMissing, err)
		}
		responder, err := NewChainResponder(ctx, chatModel, profile, historyLimit, log)
		if err != nil {
			return nil, err
		}
		return responder, nil
	case config.ProviderGemini:
		responder, err := NewGeminiResponder(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, profile, historyLimit, log)
		if err != nil {
			return nil, err
		}
		return responder, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrConfigMissing, cfg.Provider)
	}
}
