// Package store provides storage backends for Compass conversation state.
//
// Conversation state is persisted as a JSON document keyed by the opaque
// conversation identity. Backends include an in-memory store for tests,
// SQLite, PostgreSQL, and Redis.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mindsupport/compass/internal/models"
)

// Store is the conversation state store contract. Absent conversations are
// reported as (nil, nil), not as errors.
type Store interface {
	GetConversation(ctx context.Context, identity string) (*models.ConversationState, error)
	SaveConversation(ctx context.Context, state models.ConversationState) error
	DeleteConversation(ctx context.Context, identity string) error
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the backend-specific connection string: a file path for SQLite,
	// a postgres:// URL for PostgreSQL, or host:port for Redis.
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the backend connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore keeps conversation documents in a mutex-guarded map. It is
// the default backend for tests and ephemeral runs.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string][]byte)}
}

// GetConversation returns a copy of the stored conversation state, or nil if
// the identity has never been saved.
func (s *InMemoryStore) GetConversation(ctx context.Context, identity string) (*models.ConversationState, error) {
	s.mu.RLock()
	doc, ok := s.conversations[identity]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var state models.ConversationState
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation document for %s: %w", identity, err)
	}
	return &state, nil
}

// SaveConversation stores the conversation state document, replacing any
// previous version.
func (s *InMemoryStore) SaveConversation(ctx context.Context, state models.ConversationState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation document for %s: %w", state.Identity, err)
	}
	s.mu.Lock()
	s.conversations[state.Identity] = doc
	s.mu.Unlock()
	return nil
}

// DeleteConversation removes the conversation document. Deleting an absent
// identity is not an error.
func (s *InMemoryStore) DeleteConversation(ctx context.Context, identity string) error {
	s.mu.Lock()
	delete(s.conversations, identity)
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
