package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Engine   EngineConfig
	Fallback FallbackConfig
	Redis    RedisConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	fallback, err := loadFallbackConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      loadLogConfig(),
		Engine:   engine,
		Fallback: fallback,
		Redis:    loadRedisConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 控制日志级别与格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// EngineConfig 描述会话引擎的节奏与历史长度。
type EngineConfig struct {
	ThinkingDelay   time.Duration
	ThinkingJitter  time.Duration
	EscalationDelay time.Duration
	HistoryLimit    int
	SessionIdleTTL  time.Duration
}

func loadEngineConfig() (EngineConfig, error) {
	thinking, err := parseIntEnv("ENGINE_THINKING_DELAY_MS", 1000)
	if err != nil {
		return EngineConfig{}, err
	}

	jitter, err := parseIntEnv("ENGINE_THINKING_JITTER_MS", 1000)
	if err != nil {
		return EngineConfig{}, err
	}

	escalation, err := parseIntEnv("ENGINE_ESCALATION_DELAY_MS", 2000)
	if err != nil {
		return EngineConfig{}, err
	}

	history, err := parseIntEnv("ENGINE_HISTORY_LIMIT", 10)
	if err != nil {
		return EngineConfig{}, err
	}
	if history < 1 {
		history = 1
	}

	ttl, err := parseIntEnv("SESSION_IDLE_TTL_MINUTES", 30)
	if err != nil {
		return EngineConfig{}, err
	}

	if thinking < 0 || jitter < 0 || escalation < 0 {
		return EngineConfig{}, fmt.Errorf("engine delays must not be negative")
	}

	return EngineConfig{
		ThinkingDelay:   time.Duration(thinking) * time.Millisecond,
		ThinkingJitter:  time.Duration(jitter) * time.Millisecond,
		EscalationDelay: time.Duration(escalation) * time.Millisecond,
		HistoryLimit:    history,
		SessionIdleTTL:  time.Duration(ttl) * time.Minute,
	}, nil
}

// Fallback providers.
const (
	ProviderNone   = ""
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
)

// FallbackConfig 描述可选的生成式回复服务。
type FallbackConfig struct {
	Provider string
	Timeout  time.Duration
	Ark      ArkConfig
	Gemini   GeminiConfig
}

// Requested 表示是否配置了回退服务提供方。
func (c FallbackConfig) Requested() bool {
	return c.Provider != ProviderNone
}

// Enabled 表示所选提供方的凭证是否齐全。
func (c FallbackConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Ark.Enabled()
	case ProviderGemini:
		return c.Gemini.Enabled()
	default:
		return false
	}
}

// ArkConfig 描述方舟大模型相关配置。
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// GeminiConfig 描述 Gemini 接入配置。
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled 表示是否提供了 API Key。
func (c GeminiConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

func loadFallbackConfig() (FallbackConfig, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("FALLBACK_PROVIDER")))
	switch provider {
	case ProviderNone, ProviderArk, ProviderGemini:
	default:
		return FallbackConfig{}, fmt.Errorf("invalid FALLBACK_PROVIDER value %q", provider)
	}

	timeout, err := parseIntEnv("FALLBACK_TIMEOUT_SECONDS", 20)
	if err != nil {
		return FallbackConfig{}, err
	}
	if timeout < 1 {
		timeout = 1
	}

	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return FallbackConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return FallbackConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return FallbackConfig{}, err
	}

	return FallbackConfig{
		Provider: provider,
		Timeout:  time.Duration(timeout) * time.Second,
		Ark: ArkConfig{
			APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
			BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		},
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		},
	}, nil
}

// RedisConfig 描述转人工信号的发布目标。
type RedisConfig struct {
	URL           string
	HandoffStream string
}

// Enabled 表示是否配置了 Redis。
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:           strings.TrimSpace(os.Getenv("REDIS_URL")),
		HandoffStream: getEnvOrDefault("REDIS_HANDOFF_STREAM", "support_handoffs"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
