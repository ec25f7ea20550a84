// Package store persists an audit trail of enrichment requests in SQLite:
// which observables were looked up, what came back and how long it took.
// The trail is operational bookkeeping only; job state itself is never
// persisted across restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store is the SQLite-backed audit store.
type Store struct {
	db *sql.DB
}

// AuditEntry is one enriched observable's audit record.
type AuditEntry struct {
	ID              string        `json:"id"`
	ObservableType  string        `json:"observable_type"`
	ObservableValue string        `json:"observable_value"`
	Flow            string        `json:"flow"`
	Sightings       int           `json:"sightings"`
	Judgements      int           `json:"judgements"`
	Verdicts        int           `json:"verdicts"`
	Warnings        int           `json:"warnings"`
	Fatals          int           `json:"fatals"`
	Duration        time.Duration `json:"duration"`
	CreatedAt       time.Time     `json:"created_at"`
}

// NewStore opens (creating if needed) the audit database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.setupTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) setupTables() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS enrichment_audit (
			id TEXT PRIMARY KEY,
			observable_type TEXT NOT NULL,
			observable_value TEXT NOT NULL,
			flow TEXT NOT NULL,
			sightings INTEGER NOT NULL,
			judgements INTEGER NOT NULL,
			verdicts INTEGER NOT NULL,
			warnings INTEGER NOT NULL,
			fatals INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_observable ON enrichment_audit(observable_type, observable_value)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created_at ON enrichment_audit(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute audit migration: %w", err)
		}
	}
	return nil
}

// AddEntry records one enriched observable. The entry id is assigned here.
func (s *Store) AddEntry(ctx context.Context, entry AuditEntry) (string, error) {
	entry.ID = uuid.New().String()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_audit
		 (id, observable_type, observable_value, flow, sightings, judgements, verdicts, warnings, fatals, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ObservableType, entry.ObservableValue, entry.Flow,
		entry.Sightings, entry.Judgements, entry.Verdicts, entry.Warnings, entry.Fatals,
		entry.Duration.Milliseconds(), entry.CreatedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return entry.ID, nil
}

// RecentEntries returns the most recent audit entries, newest first. A limit
// of 0 means no limit.
func (s *Store) RecentEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	query := `SELECT id, observable_type, observable_value, flow, sightings, judgements,
	                 verdicts, warnings, fatals, duration_ms, created_at
	          FROM enrichment_audit ORDER BY created_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var durationMS, createdAt int64
		if err := rows.Scan(&entry.ID, &entry.ObservableType, &entry.ObservableValue, &entry.Flow,
			&entry.Sightings, &entry.Judgements, &entry.Verdicts, &entry.Warnings, &entry.Fatals,
			&durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
