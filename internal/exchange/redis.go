package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries in redis hashes and lets redis expire them, so
// every API replica can serve tokens issued by any other.
type RedisStore struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rc *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "genqueue"
	}
	return &RedisStore{rc: rc, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(token string) string {
	return fmt.Sprintf("%s:exchange:%s", s.prefix, token)
}

func (s *RedisStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	key := s.key(token)
	_, err = s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"data", data,
			"content_type", normalizeContentType(contentType),
			"created_at", strconv.FormatInt(time.Now().UnixMilli(), 10),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("exchange: put: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Entry, error) {
	if token == "" {
		return Entry{}, ErrNotFound
	}
	fields, err := s.rc.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("exchange: get: %w", err)
	}
	data, ok := fields["data"]
	if !ok {
		return Entry{}, ErrNotFound
	}
	entry := Entry{Data: []byte(data), ContentType: normalizeContentType(fields["content_type"])}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		entry.CreatedAt = time.UnixMilli(ms)
	}
	return entry, nil
}

var _ Store = (*RedisStore)(nil)
