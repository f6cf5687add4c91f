package repo

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
)

// SQLiteCheckpointer stores one row per message, ordered by seq within a thread.
type SQLiteCheckpointer struct {
	db *sql.DB
}

// NewSQLiteCheckpointer opens (creating if needed) the database at path and migrates it.
func NewSQLiteCheckpointer(ctx context.Context, path string) (*SQLiteCheckpointer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteCheckpointer{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteCheckpointer) migrate(ctx context.Context) error {
	migrations := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS thread_messages (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (thread_id, seq)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteCheckpointer) Close() error {
	return s.db.Close()
}

func (s *SQLiteCheckpointer) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM thread_messages WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to query thread")
		return nil, errx.WrapStorage(err)
	}
	defer rows.Close()

	state := emptyState(threadID)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errx.WrapStorage(err)
		}
		m, err := decodeMessage([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("message %d of thread %s: %w", len(state.Messages), threadID, err)
		}
		state.Messages = append(state.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStorage(err)
	}
	return state, nil
}

func (s *SQLiteCheckpointer) Save(ctx context.Context, threadID string, state *model.ConversationState) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapStorage(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var stored int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM thread_messages WHERE thread_id = ?`, threadID).Scan(&stored); err != nil {
		return errx.WrapStorage(err)
	}

	tail, err := tailOf(threadID, stored, state)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO thread_messages (thread_id, seq, payload) VALUES (?, ?, ?)`)
	if err != nil {
		return errx.WrapStorage(err)
	}
	defer stmt.Close()

	for i, m := range tail {
		var b []byte
		if b, err = encodeMessage(m); err != nil {
			return err
		}
		if _, err = stmt.ExecContext(ctx, threadID, stored+i, string(b)); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to insert message")
			return errx.WrapStorage(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errx.WrapStorage(err)
	}
	return nil
}

var _ model.Checkpointer = (*SQLiteCheckpointer)(nil)
