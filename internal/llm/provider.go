package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmptyResponse 表示模型返回了空内容，按可重试错误处理。
var ErrEmptyResponse = errors.New("llm: empty response")

// Provider 是抽取与问题生成所依赖的最小模型接口。
//
// forceJSON 为 true 时请求结构化输出；不支持的 Provider 可以忽略该参数，
// 调用方总是通过 FirstJSONObject 从回复文本中解析结构化数据。
type Provider interface {
	Chat(ctx context.Context, system, user string, forceJSON bool) (string, error)
	Name() string
}

// Provider 名称。
const (
	ProviderArk       = "ark"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderNone      = "none"
)

// Providers 列出所有支持的 Provider 名称。
var Providers = []string{ProviderArk, ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGemini, ProviderNone}

type Config struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	// RateLimit 每秒允许的调用次数；<=0 表示不限流。
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
	// ForceJSON 为 false 时即使调用方请求也不向模型要求 JSON 模式，用于兼容不支持的网关。
	ForceJSON bool `mapstructure:"force_json"`
}

func DefaultConfig() Config {
	return Config{
		Provider:   ProviderArk,
		BaseURL:    "https://ark.cn-beijing.volces.com/api/v3",
		Timeout:    45 * time.Second,
		MaxRetries: 2,
		RateLimit:  2,
		Burst:      4,
		ForceJSON:  true,
	}
}

// NeedsAPIKey 判断 Provider 是否需要 api_key 和 model。
func NeedsAPIKey(name string) bool {
	switch name {
	case ProviderArk, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

// Validate 检查 Provider 名称与必填项。
func (c Config) Validate() error {
	name := strings.ToLower(strings.TrimSpace(c.Provider))
	known := false
	for _, p := range Providers {
		if p == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown llm.provider %q (supported: %s)", c.Provider, strings.Join(Providers, ", "))
	}
	if NeedsAPIKey(name) {
		if c.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %s", name)
		}
		if c.Model == "" {
			return fmt.Errorf("llm.model is required for provider %s", name)
		}
	}
	if name == ProviderOllama && c.Model == "" {
		return fmt.Errorf("llm.model is required for provider %s", name)
	}
	return nil
}

// New 按名称构造 Provider，并包上超时/限流/重试。
// provider 为 none 时返回 (nil, nil)，调用方只使用确定性策略。
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...ResilientOption) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		p   Provider
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderNone:
		return nil, nil
	case ProviderArk:
		p, err = NewArkProvider(ctx, cfg)
	case ProviderOpenAI:
		p = NewOpenAIProvider(cfg)
	case ProviderAnthropic:
		p = NewAnthropicProvider(cfg)
	case ProviderOllama:
		p, err = NewOllamaProvider(cfg)
	case ProviderGemini:
		p, err = NewGeminiProvider(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}
	return NewResilient(p, cfg, logger, opts...), nil
}
