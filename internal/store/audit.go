package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store records tool invocations in a local SQLite database. It is an
// optional audit trail of this process's own activity; it never holds
// platform entities.
type Store struct {
	db *sql.DB
}

// Invocation is one recorded tool call.
type Invocation struct {
	ID          string         `json:"id"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	ResultCount int            `json:"result_count"`
	Duration    time.Duration  `json:"duration"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewStore opens (creating if needed) the audit database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+sqliteDSNOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the invocations table if it doesn't exist.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			tool TEXT NOT NULL,
			args TEXT NOT NULL,
			result_count INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_tool ON invocations(tool)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_created_at ON invocations(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute audit migration: %w", err)
		}
	}
	return nil
}

// RecordInvocation inserts an invocation record, assigning an id and
// timestamp when absent.
func (s *Store) RecordInvocation(ctx context.Context, inv Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}

	argsJSON, err := json.Marshal(inv.Args)
	if err != nil {
		return fmt.Errorf("failed to marshal invocation args: %w", err)
	}

	query := `INSERT INTO invocations (
		id, tool, args, result_count, duration_ms, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		inv.ID, inv.Tool, string(argsJSON), inv.ResultCount,
		inv.Duration.Milliseconds(), inv.Error, inv.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert invocation: %w", err)
	}
	return nil
}

// RecentInvocations returns the most recent invocations, newest first.
func (s *Store) RecentInvocations(ctx context.Context, limit int) ([]Invocation, error) {
	query := `SELECT id, tool, args, result_count, duration_ms, error, created_at
		FROM invocations ORDER BY created_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer rows.Close()

	var invocations []Invocation
	for rows.Next() {
		var inv Invocation
		var argsJSON string
		var errText *string
		var durationMS, createdAt int64

		if err := rows.Scan(&inv.ID, &inv.Tool, &argsJSON, &inv.ResultCount,
			&durationMS, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}

		inv.Duration = time.Duration(durationMS) * time.Millisecond
		inv.CreatedAt = time.Unix(createdAt, 0)
		if errText != nil {
			inv.Error = *errText
		}
		if err := json.Unmarshal([]byte(argsJSON), &inv.Args); err != nil {
			// If unmarshaling fails, keep the raw text
			inv.Args = map[string]any{"raw": argsJSON}
		}
		invocations = append(invocations, inv)
	}
	return invocations, rows.Err()
}
