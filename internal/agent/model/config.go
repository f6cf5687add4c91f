package model

import (
	"fmt"
	"strings"
)

// ================ Per-turn model selection ================

// Provider selects which chat backend serves a turn.
type Provider string

const (
	ProviderPrimary Provider = "primary"
	ProviderLocal   Provider = "local"
)

// ParseProvider accepts the provider names used by callers; empty means primary.
func ParseProvider(v string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(v))) {
	case "", ProviderPrimary:
		return ProviderPrimary, nil
	case ProviderLocal:
		return ProviderLocal, nil
	default:
		return "", fmt.Errorf("unknown model provider %q (want %q or %q)", v, ProviderPrimary, ProviderLocal)
	}
}

// ModelConfig is supplied per invocation and never persisted.
type ModelConfig struct {
	Provider    Provider `json:"provider"`
	ModelName   string   `json:"modelName,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// Validate checks the caller supplied fields.
func (c ModelConfig) Validate() error {
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		return err
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 1) {
		return fmt.Errorf("temperature must be within [0, 1], got %v", *c.Temperature)
	}
	return nil
}

// WithDefault returns c with an empty provider replaced by def.
func (c ModelConfig) WithDefault(def Provider) ModelConfig {
	if strings.TrimSpace(string(c.Provider)) == "" {
		c.Provider = def
		return c
	}
	if p, err := ParseProvider(string(c.Provider)); err == nil {
		c.Provider = p
	}
	return c
}

// ================ Env config ================

type PrimaryModelConfig struct {
	APIKey      string   `envconfig:"GEMINI_API_KEY"`
	BaseURL     string   `envconfig:"GEMINI_BASE_URL"`
	Model       string   `envconfig:"PRIMARY_MODEL" default:"gemini-2.5-flash"`
	Temperature *float32 `envconfig:"PRIMARY_TEMPERATURE" default:"0.7"`
	MaxTokens   int      `envconfig:"PRIMARY_MAX_TOKENS" default:"2000"`
}

type LocalModelConfig struct {
	BaseURL     string   `envconfig:"LOCAL_BASE_URL" default:"http://localhost:1234/v1"`
	Model       string   `envconfig:"LOCAL_MODEL" default:"local-model"`
	APIKey      string   `envconfig:"LOCAL_API_KEY" default:"not-needed"`
	Temperature *float32 `envconfig:"LOCAL_TEMPERATURE" default:"0.7"`
	MaxTokens   int      `envconfig:"LOCAL_MAX_TOKENS" default:"2000"`
}

type AgentConfig struct {
	DefaultProvider string `envconfig:"MODEL_PROVIDER" default:"primary"`
	MaxToolRounds   int    `envconfig:"AGENT_MAX_TOOL_ROUNDS" default:"10"`
	TurnTimeout     string `envconfig:"AGENT_TURN_TIMEOUT" default:"2m"`
	ToolTimeout     string `envconfig:"AGENT_TOOL_TIMEOUT" default:"20s"`
	ParallelTools   bool   `envconfig:"AGENT_PARALLEL_TOOLS" default:"true"`
}

type MemoryConfig struct {
	Backend     string `envconfig:"MEMORY_BACKEND" default:"memory"`
	TTL         string `envconfig:"CONVERSATION_TTL" default:"24h"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"conversations.db"`
	PostgresURL string `envconfig:"POSTGRES_URL"`
}

type CoinGeckoConfig struct {
	BaseURL string `envconfig:"COINGECKO_BASE_URL" default:"https://api.coingecko.com/api/v3"`
	APIKey  string `envconfig:"COINGECKO_API_KEY"`
	Timeout string `envconfig:"COINGECKO_TIMEOUT" default:"10s"`
}
