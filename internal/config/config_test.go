package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("FALLBACK_PROVIDER", "")
	t.Setenv("ENGINE_THINKING_DELAY_MS", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Engine.ThinkingDelay)
	assert.Equal(t, 2*time.Second, cfg.Engine.EscalationDelay)
	assert.Equal(t, 10, cfg.Engine.HistoryLimit)
	assert.False(t, cfg.Fallback.Requested())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "support_handoffs", cfg.Redis.HandoffStream)
}

func TestLoadPortForms(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENGINE_ESCALATION_DELAY_MS", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ENGINE_ESCALATION_DELAY_MS", "")
	t.Setenv("FALLBACK_PROVIDER", "oracle")
	_, err = Load()
	assert.Error(t, err)
}

func TestFallbackEnabled(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("FALLBACK_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Fallback.Requested())
	assert.False(t, cfg.Fallback.Enabled())

	t.Setenv("GEMINI_API_KEY", "key")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Fallback.Enabled())
	assert.Equal(t, "gemini-2.0-flash", cfg.Fallback.Gemini.Model)

	ark := ArkConfig{Model: "m", AccessKey: "ak"}
	assert.False(t, ark.Enabled())
	ark.SecretKey = "sk"
	assert.True(t, ark.Enabled())
}
