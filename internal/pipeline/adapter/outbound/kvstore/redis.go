package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
)

// recordKeyPrefix namespaces pipeline records inside a shared Redis instance.
const recordKeyPrefix = "flipfile:record:"

// RedisStore persists records in Redis. Records are written without a
// Redis TTL: expiry is enforced by the service so that blob wiping and
// metadata removal always happen together.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client. The caller owns the
// client configuration; Close tears it down.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(id string) string { return recordKeyPrefix + id }

// Put stores a record, replacing any existing record with the same ID.
func (s *RedisStore) Put(ctx context.Context, rec *domain.FileRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, recordKey(rec.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("kvstore: redis set: %w", err)
	}
	return nil
}

// Get returns the record for id, or port.ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*domain.FileRecord, error) {
	data, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, port.ErrNotFound
		}
		return nil, fmt.Errorf("kvstore: redis get: %w", err)
	}
	return decodeRecord(data)
}

// Delete removes the record for id. Deleting a missing record is a no-op.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, recordKey(id)).Err(); err != nil {
		return fmt.Errorf("kvstore: redis del: %w", err)
	}
	return nil
}

// Keys returns the IDs of all stored records using incremental SCAN so
// a sweep never blocks the Redis server.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, recordKeyPrefix+"*", 256).Result()
		if err != nil {
			return nil, fmt.Errorf("kvstore: redis scan: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, recordKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }
