package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/copilot-agent/server/internal/agent/model"
	errx "github.com/copilot-agent/server/internal/core/error"
	logx "github.com/copilot-agent/server/pkg/logger"
)

// maxWatchRetries bounds optimistic-lock retries when another writer touches the thread.
const maxWatchRetries = 3

// RedisCheckpointer stores each thread as a redis list of JSON messages.
type RedisCheckpointer struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisCheckpointer(rdb redis.UniversalClient, ttl time.Duration) *RedisCheckpointer {
	return &RedisCheckpointer{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointer) threadKey(threadID string) string {
	return fmt.Sprintf("conversation:%s:messages", threadID)
}

func (r *RedisCheckpointer) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	key := r.threadKey(threadID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return emptyState(threadID), nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread from redis")
		return nil, errx.WrapRedis(err)
	}

	state := emptyState(threadID)
	for i, s := range rows {
		m, err := decodeMessage([]byte(s))
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to decode message")
			return nil, fmt.Errorf("message at index %d: %w", i, err)
		}
		state.Messages = append(state.Messages, m)
	}
	return state, nil
}

// Save appends the messages beyond the stored list length inside a WATCH/MULTI
// transaction and refreshes the TTL.
func (r *RedisCheckpointer) Save(ctx context.Context, threadID string, state *model.ConversationState) error {
	key := r.threadKey(threadID)

	txf := func(tx *redis.Tx) error {
		stored, err := tx.LLen(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		tail, err := tailOf(threadID, int(stored), state)
		if err != nil {
			return err
		}

		payloads := make([]any, 0, len(tail))
		for _, m := range tail {
			b, err := encodeMessage(m)
			if err != nil {
				return err
			}
			payloads = append(payloads, b)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if len(payloads) > 0 {
				p.RPush(ctx, key, payloads...)
			}
			if r.ttl > 0 && (len(payloads) > 0 || stored > 0) {
				p.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			logx.Warn().Str("key", key).Int("attempt", attempt+1).Msg("thread modified concurrently, retrying save")
			continue
		}
		var appErr *errx.AppError
		if errors.As(err, &appErr) {
			return err
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to save thread to redis")
		return errx.WrapRedis(err)
	}
	return errx.WrapRedis(fmt.Errorf("save thread %s: %w", threadID, redis.TxFailedErr))
}

var _ model.Checkpointer = (*RedisCheckpointer)(nil)
