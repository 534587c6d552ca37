// Package store provides storage backends for Compass conversation state.
//
// This file implements the Redis-backed conversation store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mindsupport/compass/internal/models"
)

// conversationKeyPrefix namespaces conversation documents in Redis.
const conversationKeyPrefix = "compass:conversation:"

// RedisStore persists conversation documents as Redis string values.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed store. The DSN is either a plain
// host:port address or a redis:// URL.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("RedisStore DSN not set")
		return nil, fmt.Errorf("redis DSN not set")
	}

	var rdb *redis.Client
	if opt, err := redis.ParseURL(cfg.DSN); err == nil {
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.DSN})
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("RedisStore ready")
	return &RedisStore{rdb: rdb}, nil
}

func conversationKey(identity string) string {
	return conversationKeyPrefix + identity
}

// GetConversation loads the conversation document for an identity.
func (s *RedisStore) GetConversation(ctx context.Context, identity string) (*models.ConversationState, error) {
	doc, err := s.rdb.Get(ctx, conversationKey(identity)).Bytes()
	if err == redis.Nil {
		slog.Debug("RedisStore GetConversation not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetConversation failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to fetch conversation for %s: %w", identity, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal(doc, &state); err != nil {
		slog.Error("RedisStore GetConversation decode failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to decode conversation document for %s: %w", identity, err)
	}
	return &state, nil
}

// SaveConversation stores the conversation document without expiry.
func (s *RedisStore) SaveConversation(ctx context.Context, state models.ConversationState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		slog.Error("RedisStore SaveConversation marshal failed", "error", err, "identity", state.Identity)
		return fmt.Errorf("failed to encode conversation document for %s: %w", state.Identity, err)
	}
	if err := s.rdb.Set(ctx, conversationKey(state.Identity), doc, 0).Err(); err != nil {
		slog.Error("RedisStore SaveConversation failed", "error", err, "identity", state.Identity)
		return fmt.Errorf("failed to save conversation for %s: %w", state.Identity, err)
	}
	slog.Debug("RedisStore SaveConversation succeeded", "identity", state.Identity, "stage", state.Stage)
	return nil
}

// DeleteConversation removes the conversation document.
func (s *RedisStore) DeleteConversation(ctx context.Context, identity string) error {
	if err := s.rdb.Del(ctx, conversationKey(identity)).Err(); err != nil {
		slog.Error("RedisStore DeleteConversation failed", "error", err, "identity", identity)
		return fmt.Errorf("failed to delete conversation for %s: %w", identity, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.rdb.Close() }
