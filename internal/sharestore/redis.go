package sharestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// RedisBackend stores each record as JSON text under "<namespace>_<id>" with
// a native TTL.
type RedisBackend struct {
	client    *redis.Client
	namespace string
}

func NewRedisBackend(redisURL, namespace string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBackendWithClient(client, namespace), nil
}

func NewRedisBackendWithClient(client *redis.Client, namespace string) *RedisBackend {
	return &RedisBackend{client: client, namespace: namespace}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) key(id string) string {
	return b.namespace + "_" + id
}

func (b *RedisBackend) Insert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal share record: %w", err)
	}
	ttl := rec.TTL()
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	ok, err := b.client.SetNX(ctx, b.key(rec.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("save share record: %w", err)
	}
	if !ok {
		return ErrIDConflict
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, id string) (Record, error) {
	raw, err := b.client.Get(ctx, b.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get share record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal share record: %w", err)
	}
	return rec, nil
}

func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	if err := b.client.Del(ctx, b.key(id)).Err(); err != nil {
		return fmt.Errorf("delete share record: %w", err)
	}
	return nil
}

// Purge sweeps the namespace for records that outlived expiresAt. Redis TTL
// normally gets there first; this catches records written with a longer TTL
// than their stored expiry.
func (b *RedisBackend) Purge(ctx context.Context, now time.Time) (int, error) {
	purged := 0
	iter := b.client.Scan(ctx, 0, b.namespace+"_*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := b.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("purge share records: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil || !rec.Expired(now) {
			continue
		}
		if err := b.client.Del(ctx, key).Err(); err != nil {
			return purged, fmt.Errorf("purge share records: %w", err)
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("scan share records: %w", err)
	}
	return purged, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
