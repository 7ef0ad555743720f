// Package config loads and validates the runtime's process configuration:
// listen address, default model selection, tool allow-lists, and the
// buffer/threshold knobs exposed by the stream and controller packages
// (spec.md §4.12). Layering and defaults follow the teacher pack's viper
// conventions (None9527-NGOClaw's gateway config).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved process configuration, passed into the HTTP
// ingress as an immutable value. The Controller's constructor does not take
// a Config: it uses its own package defaults for buffer sizes, loop count,
// model window, top-k and tool deadline.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig configures the HTTP ingress.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ModelConfig configures the default oracle selection when a request's
// llm_model_config omits a field (spec.md §4.8, §4.9).
type ModelConfig struct {
	DefaultModel      string  `mapstructure:"default_model"`
	DefaultModelClass string  `mapstructure:"default_model_class"`
	DefaultMaxTokens  int     `mapstructure:"default_max_tokens"`
	Temperature       float32 `mapstructure:"temperature"`
	AnthropicAPIKey   string  `mapstructure:"anthropic_api_key"`
}

// ToolsConfig configures the tool registry's default allow-list and
// per-call deadline (spec.md §4.1).
type ToolsConfig struct {
	AllowList    []string      `mapstructure:"allow_list"`
	CallDeadline time.Duration `mapstructure:"call_deadline"`
	WorkspaceDir string        `mapstructure:"workspace_dir"`
}

// StreamConfig configures EventStream's bounded buffer and chunking
// threshold (spec.md §4.3).
type StreamConfig struct {
	BufferSize          int `mapstructure:"buffer_size"`
	ChunkThresholdBytes int `mapstructure:"chunk_threshold_bytes"`
}

// SessionConfig configures per-session budget defaults (spec.md §4.2, §4.8).
type SessionConfig struct {
	ModelWindow    int `mapstructure:"model_window"`
	ReserveTokens  int `mapstructure:"reserve_tokens"`
	MaxLoopCount   int `mapstructure:"max_loop_count"`
	TopKRelevant   int `mapstructure:"top_k_relevant"`
}

// LogConfig configures the telemetry.Logger backend.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
}

// Load reads configuration from (in increasing priority order) built-in
// defaults, a config file (./config.yaml or ./config/config.yaml), and
// AGENTRT_-prefixed environment variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("AGENTRT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Model.AnthropicAPIKey == "" {
		cfg.Model.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8088")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("model.default_model", "claude-sonnet-4-5")
	v.SetDefault("model.default_model_class", "balanced")
	v.SetDefault("model.default_max_tokens", 200000)
	v.SetDefault("model.temperature", 0.7)

	v.SetDefault("tools.allow_list", []string{})
	v.SetDefault("tools.call_deadline", "30s")
	v.SetDefault("tools.workspace_dir", filepath.Join(os.TempDir(), "agentrt-workspace"))

	v.SetDefault("stream.buffer_size", 256)
	v.SetDefault("stream.chunk_threshold_bytes", 32*1024)

	v.SetDefault("session.model_window", 200000)
	v.SetDefault("session.reserve_tokens", 1024)
	v.SetDefault("session.max_loop_count", 10)
	v.SetDefault("session.top_k_relevant", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.dev", false)
}

// Validate rejects configurations that would leave the runtime unable to
// start (spec.md §4.12 "validated at startup").
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must not be empty")
	}
	if c.Model.DefaultModel == "" {
		return fmt.Errorf("config: model.default_model must not be empty")
	}
	if c.Model.DefaultMaxTokens <= 0 {
		return fmt.Errorf("config: model.default_max_tokens must be positive")
	}
	if c.Tools.CallDeadline <= 0 {
		return fmt.Errorf("config: tools.call_deadline must be positive")
	}
	if c.Stream.BufferSize <= 0 {
		return fmt.Errorf("config: stream.buffer_size must be positive")
	}
	if c.Stream.ChunkThresholdBytes <= 0 {
		return fmt.Errorf("config: stream.chunk_threshold_bytes must be positive")
	}
	if c.Session.ModelWindow <= 0 {
		return fmt.Errorf("config: session.model_window must be positive")
	}
	if c.Session.ReserveTokens < 0 {
		return fmt.Errorf("config: session.reserve_tokens must not be negative")
	}
	if c.Session.MaxLoopCount <= 0 {
		return fmt.Errorf("config: session.max_loop_count must be positive")
	}
	if c.Session.TopKRelevant <= 0 {
		return fmt.Errorf("config: session.top_k_relevant must be positive")
	}
	return nil
}
