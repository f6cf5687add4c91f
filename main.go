package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/copilot-agent/server/internal/agent/graph"
	"github.com/copilot-agent/server/internal/agent/graph/nodes"
	"github.com/copilot-agent/server/internal/agent/graph/tools"
	"github.com/copilot-agent/server/internal/agent/model"
	"github.com/copilot-agent/server/internal/agent/repo"
	"github.com/copilot-agent/server/internal/api"
	"github.com/copilot-agent/server/internal/core"
	logx "github.com/copilot-agent/server/pkg/logger"
	pkgredis "github.com/copilot-agent/server/pkg/redis"
	"github.com/copilot-agent/server/pkg/telemetry"
)

const version = "0.1.0"

// AppConfig defines all configurable parameters of the agent server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// Infrastructure
	Redis     pkgredis.Config
	Memory    model.MemoryConfig
	Telemetry telemetry.Config

	// LLM providers
	Primary model.PrimaryModelConfig
	Local   model.LocalModelConfig

	// Agent and tools
	Agent     model.AgentConfig
	CoinGecko model.CoinGeckoConfig
}

func parseDuration(name, raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		logx.Fatal().Err(err).Str("var", name).Str("value", raw).Msg("Invalid duration")
	}
	return d
}

func main() {
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(cfg.Environment),
		Level:       cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise telemetry")
	}

	// ====================================================
	// Conversation storage
	checkpointer, closeCheckpointer, err := repo.NewCheckpointer(ctx, repo.Options{
		Backend:     cfg.Memory.Backend,
		TTL:         parseDuration("CONVERSATION_TTL", cfg.Memory.TTL),
		Redis:       cfg.Redis,
		SQLitePath:  cfg.Memory.SQLitePath,
		PostgresURL: cfg.Memory.PostgresURL,
	})
	if err != nil {
		logx.Fatal().Err(err).Str("backend", cfg.Memory.Backend).Msg("Failed to initialise checkpointer")
	}

	// ====================================================
	// Tools
	coinGecko := tools.NewCoinGeckoClient(tools.CoinGeckoOptions{
		BaseURL: cfg.CoinGecko.BaseURL,
		APIKey:  cfg.CoinGecko.APIKey,
		Timeout: parseDuration("COINGECKO_TIMEOUT", cfg.CoinGecko.Timeout),
	})
	registry, err := tools.NewDefaultRegistry(coinGecko)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build tool registry")
	}
	dispatcher := nodes.NewDispatcher(registry, parseDuration("AGENT_TOOL_TIMEOUT", cfg.Agent.ToolTimeout), cfg.Agent.ParallelTools)

	// ====================================================
	// Agent graph
	defaultProvider, err := model.ParseProvider(cfg.Agent.DefaultProvider)
	if err != nil {
		logx.Fatal().Err(err).Msg("Invalid MODEL_PROVIDER")
	}
	runner, err := graph.BuildRunner(ctx, graph.Config{
		Factory: nodes.NewChatModelFactory(nodes.ChatModelConfig{
			Primary: cfg.Primary,
			Local:   cfg.Local,
		}),
		Checkpointer:    checkpointer,
		Dispatcher:      dispatcher,
		DefaultProvider: defaultProvider,
		MaxToolRounds:   cfg.Agent.MaxToolRounds,
		TurnTimeout:     parseDuration("AGENT_TURN_TIMEOUT", cfg.Agent.TurnTimeout),
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build agent graph")
	}

	// ====================================================
	// HTTP
	handler := api.NewHandler(runner, checkpointer, dispatcher, version)
	server := api.NewServer(handler, api.NewMCPServer(dispatcher, version))

	go func() {
		logx.Info().
			Str("addr", cfg.HTTPAddr).
			Str("provider", string(defaultProvider)).
			Str("memory_backend", cfg.Memory.Backend).
			Int("tools", len(registry.List())).
			Msg("Agent server listening")
		if err := server.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logx.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := closeCheckpointer(); err != nil {
		logx.Error().Err(err).Msg("Checkpointer close failed")
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Telemetry shutdown failed")
	}
}
