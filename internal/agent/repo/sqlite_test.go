package repo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copilot-agent/server/internal/agent/model"
	"github.com/copilot-agent/server/internal/agent/repo"
)

func TestSQLiteCheckpointer(t *testing.T) {
	cp, err := repo.NewSQLiteCheckpointer(context.Background(), filepath.Join(t.TempDir(), "threads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })

	runCheckpointerContract(t, cp)
}

func TestSQLiteCheckpointerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "threads.db")

	cp, err := repo.NewSQLiteCheckpointer(ctx, path)
	require.NoError(t, err)
	require.NoError(t, cp.Save(ctx, "persisted", &model.ConversationState{
		ThreadID: "persisted",
		Messages: []*schema.Message{schema.UserMessage("remember me"), schema.AssistantMessage("ok", nil)},
	}))
	require.NoError(t, cp.Close())

	reopened, err := repo.NewSQLiteCheckpointer(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	state, err := reopened.Load(ctx, "persisted")
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "remember me", state.Messages[0].Content)
}

func TestNewCheckpointerSQLite(t *testing.T) {
	cp, closer, err := repo.NewCheckpointer(context.Background(), repo.Options{
		Backend:    "SQLite",
		SQLitePath: filepath.Join(t.TempDir(), "threads.db"),
	})
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &repo.SQLiteCheckpointer{}, cp)
}
