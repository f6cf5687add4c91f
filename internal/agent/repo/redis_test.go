package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copilot-agent/server/internal/agent/model"
	"github.com/copilot-agent/server/internal/agent/repo"
	errx "github.com/copilot-agent/server/internal/core/error"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCheckpointer(t *testing.T) {
	_, rdb := newTestRedis(t)
	runCheckpointerContract(t, repo.NewRedisCheckpointer(rdb, time.Hour))
}

func TestRedisCheckpointerRefreshesTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cp := repo.NewRedisCheckpointer(rdb, 30*time.Minute)
	ctx := context.Background()

	require.NoError(t, cp.Save(ctx, "ttl", &model.ConversationState{
		ThreadID: "ttl", Messages: []*schema.Message{schema.UserMessage("hi")},
	}))
	assert.Equal(t, 30*time.Minute, mr.TTL("conversation:ttl:messages"))

	mr.FastForward(31 * time.Minute)
	state, err := cp.Load(ctx, "ttl")
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
}

func TestRedisCheckpointerStorageFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	cp := repo.NewRedisCheckpointer(rdb, 0)
	mr.Close()

	_, err := cp.Load(context.Background(), "down")
	require.Error(t, err)
	assert.ErrorIs(t, err, &errx.AppError{Code: errx.CodeStorage})
}
