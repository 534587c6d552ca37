// Package store provides storage backends for Compass conversation state.
//
// This file implements the PostgreSQL-backed conversation store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/mindsupport/compass/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversation documents in a PostgreSQL jsonb column.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store from a postgres:// DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore ready")
	return &PostgresStore{db: db}, nil
}

// GetConversation loads the conversation document for an identity.
func (s *PostgresStore) GetConversation(ctx context.Context, identity string) (*models.ConversationState, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM conversations WHERE identity = $1`, identity).Scan(&doc)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetConversation not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", identity, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal(doc, &state); err != nil {
		slog.Error("PostgresStore GetConversation decode failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to decode conversation document for %s: %w", identity, err)
	}
	return &state, nil
}

// SaveConversation upserts the conversation document.
func (s *PostgresStore) SaveConversation(ctx context.Context, state models.ConversationState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		slog.Error("PostgresStore SaveConversation marshal failed", "error", err, "identity", state.Identity)
		return fmt.Errorf("failed to encode conversation document for %s: %w", state.Identity, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (identity, document, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (identity) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		state.Identity, doc)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "identity", state.Identity)
		return fmt.Errorf("failed to save conversation for %s: %w", state.Identity, err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "identity", state.Identity, "stage", state.Stage)
	return nil
}

// DeleteConversation removes the conversation document.
func (s *PostgresStore) DeleteConversation(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE identity = $1`, identity); err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "identity", identity)
		return fmt.Errorf("failed to delete conversation for %s: %w", identity, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }
