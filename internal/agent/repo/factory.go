package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/copilot-agent/server/internal/agent/model"
	logx "github.com/copilot-agent/server/pkg/logger"
	pkgredis "github.com/copilot-agent/server/pkg/redis"
)

// Backend names accepted by MEMORY_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a checkpointer backend.
type Options struct {
	Backend     string
	TTL         time.Duration
	Redis       pkgredis.Config
	SQLitePath  string
	PostgresURL string
}

// Closer releases backend resources.
type Closer func() error

func noopCloser() error { return nil }

// NewCheckpointer builds the configured backend. An unknown backend name falls
// back to memory with a warning; a known backend that cannot connect is an error.
func NewCheckpointer(ctx context.Context, opts Options) (model.Checkpointer, Closer, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	switch backend {
	case "", BackendMemory:
		logx.Info().Str("backend", BackendMemory).Msg("Using in-memory checkpointer")
		return NewMemoryCheckpointer(), noopCloser, nil

	case BackendRedis:
		rdb, err := opts.Redis.New(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		logx.Info().Str("backend", BackendRedis).Dur("ttl", opts.TTL).Msg("Using redis checkpointer")
		return NewRedisCheckpointer(rdb, opts.TTL), rdb.Close, nil

	case BackendSQLite:
		s, err := NewSQLiteCheckpointer(ctx, opts.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", opts.SQLitePath, err)
		}
		logx.Info().Str("backend", BackendSQLite).Str("path", opts.SQLitePath).Msg("Using sqlite checkpointer")
		return s, s.Close, nil

	case BackendPostgres:
		if opts.PostgresURL == "" {
			return nil, nil, fmt.Errorf("POSTGRES_URL is required for the postgres backend")
		}
		p, err := NewPostgresCheckpointer(ctx, opts.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		logx.Info().Str("backend", BackendPostgres).Msg("Using postgres checkpointer")
		return p, p.Close, nil

	default:
		logx.Warn().Str("backend", opts.Backend).Msg("Unknown MEMORY_BACKEND, falling back to in-memory checkpointer")
		return NewMemoryCheckpointer(), noopCloser, nil
	}
}
