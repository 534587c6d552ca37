// Package store provides storage backends for Compass conversation state.
//
// This file implements the SQLite-backed conversation store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mindsupport/compass/internal/models"
)

// DefaultDirPermissions defines the permissions for created database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversation documents in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store. The DSN is the database file
// path; missing parent directories are created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// GetConversation loads the conversation document for an identity.
func (s *SQLiteStore) GetConversation(ctx context.Context, identity string) (*models.ConversationState, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM conversations WHERE identity = ?`, identity).Scan(&doc)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetConversation not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", identity, err)
	}
	var state models.ConversationState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		slog.Error("SQLiteStore GetConversation decode failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to decode conversation document for %s: %w", identity, err)
	}
	return &state, nil
}

// SaveConversation upserts the conversation document.
func (s *SQLiteStore) SaveConversation(ctx context.Context, state models.ConversationState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation marshal failed", "error", err, "identity", state.Identity)
		return fmt.Errorf("failed to encode conversation document for %s: %w", state.Identity, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (identity, document, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		state.Identity, string(doc), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "identity", state.Identity)
		return fmt.Errorf("failed to save conversation for %s: %w", state.Identity, err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "identity", state.Identity, "stage", state.Stage)
	return nil
}

// DeleteConversation removes the conversation document.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE identity = ?`, identity); err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "identity", identity)
		return fmt.Errorf("failed to delete conversation for %s: %w", identity, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
