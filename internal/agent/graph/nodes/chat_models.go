package nodes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/copilot-agent/server/internal/agent/model"
	logx "github.com/copilot-agent/server/pkg/logger"
)

// ModelFactory turns a per-turn ModelConfig into a chat client. Implementations
// must not perform network calls; failures surface when the client is invoked.
type ModelFactory interface {
	Create(ctx context.Context, cfg model.ModelConfig) (*ResolvedModel, error)
}

// ResolvedModel is a configured, stateless chat client plus the settings it was built with.
type ResolvedModel struct {
	Chat        einomodel.ToolCallingChatModel
	Provider    model.Provider
	Name        string
	Temperature float32
}

// ChatModelConfig holds the env defaults for both providers.
type ChatModelConfig struct {
	Primary model.PrimaryModelConfig
	Local   model.LocalModelConfig
}

// ChatModelFactory builds Gemini clients for the primary provider and
// OpenAI-protocol clients for local servers.
type ChatModelFactory struct {
	cfg ChatModelConfig

	genaiOnce   sync.Once
	genaiClient *genai.Client
	genaiErr    error
}

// NewChatModelFactory creates the factory used by the agent node.
func NewChatModelFactory(cfg ChatModelConfig) *ChatModelFactory {
	return &ChatModelFactory{cfg: cfg}
}

// Create returns a chat client for cfg. Unset fields fall back to env defaults.
func (f *ChatModelFactory) Create(ctx context.Context, cfg model.ModelConfig) (*ResolvedModel, error) {
	provider, err := model.ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	switch provider {
	case model.ProviderLocal:
		return f.createLocal(ctx, cfg)
	default:
		return f.createPrimary(ctx, cfg)
	}
}

func (f *ChatModelFactory) createPrimary(ctx context.Context, cfg model.ModelConfig) (*ResolvedModel, error) {
	client, err := f.gemini(ctx)
	if err != nil {
		return nil, err
	}

	name := pick(cfg.ModelName, f.cfg.Primary.Model, DefaultPrimaryModel)
	temperature := pickTemperature(cfg.Temperature, f.cfg.Primary.Temperature)
	maxTokens := f.cfg.Primary.MaxTokens

	gemCfg := &gemini.Config{
		Client:      client,
		Model:       name,
		Temperature: &temperature,
	}
	if maxTokens > 0 {
		gemCfg.MaxTokens = &maxTokens
	}

	chat, err := gemini.NewChatModel(ctx, gemCfg)
	if err != nil {
		logx.Error().Err(err).Str("model", name).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}
	return &ResolvedModel{Chat: chat, Provider: model.ProviderPrimary, Name: name, Temperature: temperature}, nil
}

// gemini lazily creates the shared genai client; it is safe for concurrent use.
func (f *ChatModelFactory) gemini(ctx context.Context) (*genai.Client, error) {
	f.genaiOnce.Do(func() {
		if strings.TrimSpace(f.cfg.Primary.APIKey) == "" {
			f.genaiErr = fmt.Errorf("GEMINI_API_KEY is not set")
			return
		}
		clientCfg := &genai.ClientConfig{
			APIKey:  f.cfg.Primary.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if f.cfg.Primary.BaseURL != "" {
			clientCfg.HTTPOptions.BaseURL = f.cfg.Primary.BaseURL
		}
		f.genaiClient, f.genaiErr = genai.NewClient(ctx, clientCfg)
		if f.genaiErr != nil {
			logx.Error().Err(f.genaiErr).Msg("Error creating Gemini client")
			f.genaiErr = fmt.Errorf("error creating Gemini client: %w", f.genaiErr)
		}
	})
	return f.genaiClient, f.genaiErr
}

func (f *ChatModelFactory) createLocal(ctx context.Context, cfg model.ModelConfig) (*ResolvedModel, error) {
	name := pick(cfg.ModelName, f.cfg.Local.Model, DefaultLocalModel)
	temperature := pickTemperature(cfg.Temperature, f.cfg.Local.Temperature)
	baseURL := pick(f.cfg.Local.BaseURL, DefaultLocalBaseURL)
	apiKey := pick(f.cfg.Local.APIKey, DefaultLocalAPIKey)

	oaCfg := &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       name,
		Temperature: &temperature,
	}
	if f.cfg.Local.MaxTokens > 0 {
		maxTokens := f.cfg.Local.MaxTokens
		oaCfg.MaxTokens = &maxTokens
	}

	chat, err := openai.NewChatModel(ctx, oaCfg)
	if err != nil {
		logx.Error().Err(err).Str("base_url", baseURL).Msg("Error creating local chat model")
		return nil, fmt.Errorf("error creating local chat model: %w", err)
	}
	return &ResolvedModel{Chat: chat, Provider: model.ProviderLocal, Name: name, Temperature: temperature}, nil
}

const (
	DefaultPrimaryModel = "gemini-2.5-flash"
	DefaultLocalModel   = "local-model"
	DefaultLocalBaseURL = "http://localhost:1234/v1"
	DefaultLocalAPIKey  = "not-needed"
	DefaultTemperature  = float32(0.7)
)

// pick returns the first non-blank value.
func pick(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// pickTemperature prefers the caller, then the env value (zero included), then DefaultTemperature.
func pickTemperature(requested, envDefault *float32) float32 {
	if requested != nil {
		return *requested
	}
	if envDefault != nil {
		return *envDefault
	}
	return DefaultTemperature
}

var _ ModelFactory = (*ChatModelFactory)(nil)
