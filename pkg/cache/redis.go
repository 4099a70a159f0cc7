package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const DefaultTTL = 24 * time.Hour

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// RedisCache stores each session's message list as one JSON value.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ MessageCache = (*RedisCache)(nil)

func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "vizthinker"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}, nil
}

func (r *RedisCache) GetMessages(ctx context.Context, sessionID tree.SessionID) ([]*tree.Message, error) {
	data, err := r.client.Get(ctx, r.sessionMessagesKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session messages from cache")
	}

	var msgs []*tree.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, errors.Wrap(err, "unmarshal session messages")
	}
	return msgs, nil
}

func (r *RedisCache) Generation(ctx context.Context, sessionID tree.SessionID) (int64, error) {
	return readGeneration(ctx, r.client, r.generationKey(sessionID))
}

// SetMessages stores msgs only if the session's generation still equals
// generation. The check and the write run under WATCH, so an Invalidate that
// lands in between aborts the write.
func (r *RedisCache) SetMessages(ctx context.Context, sessionID tree.SessionID, generation int64, msgs []*tree.Message) error {
	if msgs == nil {
		msgs = []*tree.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return errors.Wrap(err, "marshal session messages")
	}

	genKey := r.generationKey(sessionID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if current != generation {
			return ErrStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.sessionMessagesKey(sessionID), data, r.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleFill
	}
	return err
}

// Invalidate drops the cached lists and bumps each session's generation.
func (r *RedisCache) Invalidate(ctx context.Context, sessionIDs ...tree.SessionID) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range sessionIDs {
			genKey := r.generationKey(id)
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, 2*r.ttl)
			pipe.Del(ctx, r.sessionMessagesKey(id))
		}
		return nil
	})
	return err
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) sessionMessagesKey(sessionID tree.SessionID) string {
	return fmt.Sprintf("%s:session:%d:messages", r.prefix, sessionID)
}

func (r *RedisCache) generationKey(sessionID tree.SessionID) string {
	return fmt.Sprintf("%s:session:%d:generation", r.prefix, sessionID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, c getter, key string) (int64, error) {
	gen, err := c.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read cache generation")
	}
	return gen, nil
}
