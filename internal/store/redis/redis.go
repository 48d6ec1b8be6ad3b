package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

const historyTTL = 30 * 24 * time.Hour

// RedisStore keeps each room log as a Redis list.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// historyKey returns the key for a room's history list.
func historyKey(roomID string) string {
	return fmt.Sprintf("room:%s:history", roomID)
}

// snapshotKey marks that a room was saved, so empty logs can be told apart
// from missing ones.
func snapshotKey(roomID string) string {
	return fmt.Sprintf("room:%s:snapshot", roomID)
}

// SaveHistory replaces the list atomically.
func (s *RedisStore) SaveHistory(ctx context.Context, roomID string, entries []store.HistoryEntry) error {
	values := make([]any, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal history entry: %w", err)
		}
		values = append(values, string(data))
	}

	key := historyKey(roomID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, historyTTL)
		}
		pipe.Set(ctx, snapshotKey(roomID), time.Now().UnixMilli(), historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// LoadHistory reads the whole list.
func (s *RedisStore) LoadHistory(ctx context.Context, roomID string) ([]store.HistoryEntry, error) {
	exists, err := s.client.Exists(ctx, snapshotKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check snapshot: %w", err)
	}
	if exists == 0 {
		return nil, store.ErrNotFound
	}

	results, err := s.client.LRange(ctx, historyKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	entries := make([]store.HistoryEntry, 0, len(results))
	for _, raw := range results {
		var e store.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
