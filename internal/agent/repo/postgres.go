package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS thread_messages (
	thread_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (thread_id, seq)
)`

// PostgresCheckpointer stores one jsonb row per message. Writers to the same
// thread are serialized with a transaction-scoped advisory lock.
type PostgresCheckpointer struct {
	pool *pgxpool.Pool
}

// NewPostgresCheckpointer connects, pings and migrates.
func NewPostgresCheckpointer(ctx context.Context, dsn string) (*PostgresCheckpointer, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &PostgresCheckpointer{pool: pool}, nil
}

func (p *PostgresCheckpointer) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresCheckpointer) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM thread_messages WHERE thread_id = $1 ORDER BY seq`, threadID)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to query thread")
		return nil, errx.WrapStorage(err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, errx.WrapStorage(err)
	}

	state := emptyState(threadID)
	for i, b := range payloads {
		m, err := decodeMessage(b)
		if err != nil {
			return nil, fmt.Errorf("message %d of thread %s: %w", i, threadID, err)
		}
		state.Messages = append(state.Messages, m)
	}
	return state, nil
}

func (p *PostgresCheckpointer) Save(ctx context.Context, threadID string, state *model.ConversationState) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, threadID); err != nil {
			return err
		}

		var stored int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM thread_messages WHERE thread_id = $1`, threadID).Scan(&stored); err != nil {
			return err
		}

		tail, err := tailOf(threadID, stored, state)
		if err != nil || len(tail) == 0 {
			return err
		}

		batch := &pgx.Batch{}
		for i, m := range tail {
			b, err := encodeMessage(m)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO thread_messages (thread_id, seq, payload) VALUES ($1, $2, $3::jsonb)`,
				threadID, stored+i, string(b))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to save thread to postgres")
		return errx.WrapStorage(err)
	}
	return nil
}

var _ model.Checkpointer = (*PostgresCheckpointer)(nil)
