package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces job keys in a shared Redis database.
const DefaultKeyPrefix = "bulkimport:job:"

// RedisStore keeps jobs in Redis with native key expiry.
//
// CompareAndSwap uses WATCH/MULTI: if another client writes the key between
// the read and the EXEC, the transaction aborts and the caller sees
// core.ErrVersionMismatch.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// Get implements core.JobStore.
func (s *RedisStore) Get(ctx context.Context, token string) (core.ImportJob, error) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.ImportJob{}, core.ErrNotFound
	}
	if err != nil {
		return core.ImportJob{}, fmt.Errorf("redis get: %w", err)
	}
	return decodeJob(data)
}

// Put implements core.JobStore.
func (s *RedisStore) Put(ctx context.Context, token string, job core.ImportJob, ttl time.Duration) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CompareAndSwap implements core.JobStore.
func (s *RedisStore) CompareAndSwap(ctx context.Context, token string, expected int64, job core.ImportJob, ttl time.Duration) (int64, error) {
	key := s.key(token)
	job.Version = expected + 1
	data, err := encodeJob(job)
	if err != nil {
		return 0, err
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}

		stored, err := decodeJob(current)
		if err != nil {
			return err
		}
		if stored.Version != expected {
			return core.ErrVersionMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return 0, core.ErrVersionMismatch
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrVersionMismatch):
		return 0, err
	case err != nil:
		return 0, fmt.Errorf("redis compare-and-swap: %w", err)
	}

	return job.Version, nil
}

// Delete implements core.JobStore.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity, for startup and health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
