package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wwwzy/PumpCPQ/internal/agent"
	"github.com/wwwzy/PumpCPQ/internal/llm"
	"github.com/wwwzy/PumpCPQ/internal/retention"
	"github.com/wwwzy/PumpCPQ/internal/storage"
)

// CatalogConfig 指定产品目录来源。
type CatalogConfig struct {
	// Path 为空时使用内置目录
	Path string `mapstructure:"path"`
	// DiscountPercent 覆盖目录中的默认折扣；<0 表示使用目录默认值
	DiscountPercent float64 `mapstructure:"discount_percent"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的监听地址。
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Config struct {
	LogLevel  string           `mapstructure:"log_level"`
	LogFormat string           `mapstructure:"log_format"`
	Storage   storage.Config   `mapstructure:"storage"`
	LLM       llm.Config       `mapstructure:"llm"`
	Agent     agent.Config     `mapstructure:"agent"`
	Catalog   CatalogConfig    `mapstructure:"catalog"`
	Server    ServerConfig     `mapstructure:"server"`
	Retention retention.Config `mapstructure:"retention"`
}

// providerEnv 各 Provider 约定俗成的环境变量。只在配置文件和 PUMPCPQ_LLM_* 都没有给出时才使用。
var providerEnv = map[string]struct{ apiKey, model, baseURL string }{
	llm.ProviderArk:       {"ARK_API_KEY", "ARK_MODEL_ID", "ARK_BASE_URL"},
	llm.ProviderOpenAI:    {"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL"},
	llm.ProviderAnthropic: {"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL"},
	llm.ProviderGemini:    {"GEMINI_API_KEY", "GEMINI_MODEL", ""},
	llm.ProviderOllama:    {"", "OLLAMA_MODEL", "OLLAMA_HOST"},
}

func Load(cfgFile string) (*Config, error) {
	// 1. 初始化 Viper
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// 默认搜索路径
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pumpcpq")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PUMPCPQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal 只解码 Viper 已知的 key，所以每个 key 都要有默认值，
	// 否则只存在于环境变量中的配置会被忽略。
	setDefaults(v)

	// 2. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件未找到，使用默认值
	}

	// 3. 反序列化 (文件/环境变量 覆盖 默认值)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	applyProviderEnv(v, &cfg.LLM)

	// 4. 验证关键配置
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyProviderEnv 用 Provider 专属的环境变量补齐空缺的 llm 配置。
func applyProviderEnv(v *viper.Viper, c *llm.Config) {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.APIKey == "" {
		c.APIKey = v.GetString("env." + c.Provider + ".api_key")
	}
	if c.Model == "" {
		c.Model = v.GetString("env." + c.Provider + ".model")
	}
	if c.BaseURL == "" {
		c.BaseURL = v.GetString("env." + c.Provider + ".base_url")
	}
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q (supported: debug, info, warn, error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log_format %q (supported: console, json)", c.LogFormat)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("%w (or set the provider's API key env var, e.g. ARK_API_KEY)", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return err
	}
	if c.Catalog.DiscountPercent > 100 {
		return fmt.Errorf("catalog.discount_percent must be <= 100")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// -------------------------------------------------------------------------
	// Global Defaults (全局默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	// -------------------------------------------------------------------------
	// Storage Defaults (存储默认值)
	// -------------------------------------------------------------------------
	v.SetDefault("storage.path", "pumpcpq.db")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("storage.enable_wal", true)
	v.SetDefault("storage.synchronous", "")
	v.SetDefault("storage.busy_timeout", 5*time.Second)
	v.SetDefault("storage.max_open_conns", 0)
	v.SetDefault("storage.max_idle_conns", 0)
	v.SetDefault("storage.conn_max_lifetime", time.Duration(0))

	// -------------------------------------------------------------------------
	// LLM Defaults (模型默认值)
	// -------------------------------------------------------------------------
	// 默认不接模型，只用确定性抽取；配置 provider 后才会调用模型
	llmDefaults := llm.DefaultConfig()
	v.SetDefault("llm.provider", llm.ProviderNone)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", llmDefaults.Timeout)
	v.SetDefault("llm.max_retries", llmDefaults.MaxRetries)
	v.SetDefault("llm.rate_limit", llmDefaults.RateLimit)
	v.SetDefault("llm.burst", llmDefaults.Burst)
	v.SetDefault("llm.force_json", llmDefaults.ForceJSON)

	for name, env := range providerEnv {
		if env.apiKey != "" {
			_ = v.BindEnv("env."+name+".api_key", env.apiKey)
		}
		if env.model != "" {
			_ = v.BindEnv("env."+name+".model", env.model)
		}
		if env.baseURL != "" {
			_ = v.BindEnv("env."+name+".base_url", env.baseURL)
		}
	}
	v.SetDefault("env.ark.base_url", llmDefaults.BaseURL)

	// -------------------------------------------------------------------------
	// Agent Defaults (会话默认值)
	// -------------------------------------------------------------------------
	agentDefaults := agent.DefaultConfig()
	v.SetDefault("agent.approval_timeout", agentDefaults.ApprovalTimeout)
	v.SetDefault("agent.phraser", agentDefaults.Phraser)
	v.SetDefault("agent.question_fallback", agentDefaults.QuestionFallback)
	v.SetDefault("agent.max_transitions", agentDefaults.MaxTransitions)

	// -------------------------------------------------------------------------
	// Catalog / Server Defaults
	// -------------------------------------------------------------------------
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.discount_percent", -1.0)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)

	// -------------------------------------------------------------------------
	// Retention Defaults (数据清理默认值)
	// -------------------------------------------------------------------------
	retentionDefaults := retention.DefaultConfig()
	v.SetDefault("retention.enabled", retentionDefaults.Enabled)
	v.SetDefault("retention.interval", retentionDefaults.Interval)
	v.SetDefault("retention.keep_audit", retentionDefaults.KeepAudit)
	v.SetDefault("retention.keep_quotes", retentionDefaults.KeepQuotes)
	v.SetDefault("retention.batch_rows", retentionDefaults.BatchRows)
	v.SetDefault("retention.idle_sleep", retentionDefaults.IdleSleep)
}

func DefaultConfig() Config {
	llmCfg := llm.DefaultConfig()
	llmCfg.Provider = llm.ProviderNone
	llmCfg.BaseURL = ""
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Storage: storage.Config{
			Path:        "pumpcpq.db",
			EnableWAL:   true,
			BusyTimeout: 5 * time.Second,
		},
		LLM:       llmCfg,
		Agent:     agent.DefaultConfig(),
		Catalog:   CatalogConfig{DiscountPercent: -1},
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8080},
		Retention: retention.DefaultConfig(),
	}
}
