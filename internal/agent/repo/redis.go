package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/askscout/agent/internal/agent/model"
	errx "github.com/askscout/agent/internal/core/error"
	logx "github.com/askscout/agent/pkg/logger"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
)

// RedisCheckpointStore persists thread checkpoints in a Redis list per
// thread, with an optional TTL refreshed on every save.
type RedisCheckpointStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCheckpointStore(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl}
}

func (s *RedisCheckpointStore) threadKey(threadID string) string {
	return fmt.Sprintf("thread:%s:messages", threadID)
}

func (s *RedisCheckpointStore) Load(ctx context.Context, threadID string) (*model.ConversationState, error) {
	key := s.threadKey(threadID)

	rows, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return &model.ConversationState{ThreadID: threadID, Messages: []*schema.Message{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread checkpoint from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, row := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return &model.ConversationState{ThreadID: threadID, Messages: msgs}, nil
}

// Save overwrites the thread's checkpoint in a single transactional pipeline,
// so concurrent readers observe either the previous log or the new one.
func (s *RedisCheckpointStore) Save(ctx context.Context, threadID string, messages []*schema.Message) error {
	key := s.threadKey(threadID)

	encoded := make([]interface{}, 0, len(messages))
	for i, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Int("index", i).Msg("failed to marshal message")
			return fmt.Errorf("marshal message at index %d: %w", i, err)
		}
		encoded = append(encoded, b)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(encoded) > 0 {
		pipe.RPush(ctx, key, encoded...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save thread checkpoint to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisCheckpointStore) Clear(ctx context.Context, threadID string) error {
	key := s.threadKey(threadID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete thread checkpoint from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisCheckpointStore) MessageCount(ctx context.Context, threadID string) (int, error) {
	key := s.threadKey(threadID)
	n, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.CheckpointStore = (*RedisCheckpointStore)(nil)
