package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"pasteapi/internal/model"
)

const (
	redisKeyPrefix    = "paste:"
	redisFieldContent = "content"
	redisFieldMeta    = "meta"
)

// Redis keeps each paste in a hash at paste:<id> with fields content and meta.
// Connections come from the client's own bounded pool.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

var (
	_ Backend = (*Redis)(nil)
	_ Pinger  = (*Redis)(nil)
	_ Closer  = (*Redis)(nil)
)

// Create writes both fields in a single HSET inside WATCH/MULTI, so the hash
// appears whole and an existing key is never overwritten.
func (r *Redis) Create(ctx context.Context, id string, content []byte, meta string) error {
	key := redisKeyPrefix + id

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, redisFieldContent, content, redisFieldMeta, meta)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		return r.mapError(err)
	}
}

// Retrieve reads the whole hash. An empty hash means the key does not exist.
func (r *Redis) Retrieve(ctx context.Context, id string) (*model.Paste, error) {
	fields, err := r.client.HGetAll(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return nil, r.mapError(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	meta, ok := fields[redisFieldMeta]
	if !ok {
		meta = model.DefaultMeta
	}
	return &model.Paste{
		ID:      id,
		Content: []byte(fields[redisFieldContent]),
		Meta:    meta,
	}, nil
}

// Ping round-trips to the server.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return r.mapError(err)
	}
	return nil
}

// Close releases the client's pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	// go-redis reports pool waits that hit PoolTimeout with this message.
	if strings.Contains(err.Error(), "connection pool timeout") {
		return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
	}
	return fmt.Errorf("%w: redis: %v", ErrIO, err)
}
