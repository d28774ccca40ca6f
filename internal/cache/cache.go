// Package cache keeps local console state in SQLite: the last case
// snapshot fetched from the backend, so the operator still sees data
// when the backend is unreachable, and the interaction journal that
// records every operator action for audit reconstruction. Nothing here
// is authoritative; the backend owns the truth.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pathoai/patho-console/internal/billing"
)

// Cache represents the local SQLite state store.
type Cache struct {
	db *sql.DB
}

// New opens (creating if needed) the cache database at dbPath and runs
// migrations. Use ":memory:" for an ephemeral cache.
func New(dbPath string) (*Cache, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}
	return c, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// migrate performs schema migrations.
func (c *Cache) migrate() error {
	migrations := []string{
		// Last known case list, in server order.
		`CREATE TABLE IF NOT EXISTS case_snapshot (
			slide_id TEXT PRIMARY KEY,
			id INTEGER NOT NULL,
			patient_id TEXT NOT NULL,
			patient_name TEXT,
			diagnosis TEXT,
			status TEXT NOT NULL,
			image_url TEXT,
			base_cpt TEXT,
			suggested_cpt TEXT,
			recovery_value REAL DEFAULT 0,
			confidence_score REAL DEFAULT 0,
			created_at TEXT,
			position INTEGER NOT NULL
		)`,

		// Snapshot metadata (fetched_at and friends).
		`CREATE TABLE IF NOT EXISTS snapshot_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Operator interaction journal.
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			slide_id TEXT NOT NULL,
			action TEXT NOT NULL,
			actor TEXT,
			details TEXT,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_snapshot_position ON case_snapshot(position)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_status ON case_snapshot(status)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_slide_id ON interactions(slide_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_action ON interactions(action)`,
	}

	for _, migration := range migrations {
		if _, err := c.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// SaveSnapshot replaces the stored case list with a freshly fetched one
// and stamps the fetch time. The whole swap runs in one transaction so
// a crash never leaves a half-written snapshot.
func (c *Cache) SaveSnapshot(ctx context.Context, cases []billing.Case) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM case_snapshot`); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO case_snapshot (
		slide_id, id, patient_id, patient_name, diagnosis, status, image_url,
		base_cpt, suggested_cpt, recovery_value, confidence_score, created_at, position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, cs := range cases {
		if _, err := stmt.ExecContext(ctx,
			cs.SlideID, cs.ID, cs.PatientID, cs.PatientName, cs.Diagnosis,
			string(cs.Status), cs.ImageURL, cs.BaseCPT, cs.SuggestedCPT,
			cs.RecoveryValue, cs.ConfidenceScore, cs.CreatedAt, i); err != nil {
			return fmt.Errorf("failed to insert snapshot row for %s: %w", cs.SlideID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshot_meta (key, value) VALUES ('fetched_at', ?)`,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to stamp snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored case list in server order and the
// time it was fetched. An empty cache yields no cases and a zero time.
func (c *Cache) LoadSnapshot(ctx context.Context) ([]billing.Case, time.Time, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT
		slide_id, id, patient_id, patient_name, diagnosis, status, image_url,
		base_cpt, suggested_cpt, recovery_value, confidence_score, created_at
		FROM case_snapshot ORDER BY position ASC`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var cases []billing.Case
	for rows.Next() {
		var cs billing.Case
		var status string
		if err := rows.Scan(&cs.SlideID, &cs.ID, &cs.PatientID, &cs.PatientName,
			&cs.Diagnosis, &status, &cs.ImageURL, &cs.BaseCPT, &cs.SuggestedCPT,
			&cs.RecoveryValue, &cs.ConfidenceScore, &cs.CreatedAt); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		cs.Status = billing.CaseStatus(status)
		cases = append(cases, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read snapshot rows: %w", err)
	}

	fetchedAt, err := c.snapshotFetchedAt(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	return cases, fetchedAt, nil
}

func (c *Cache) snapshotFetchedAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM snapshot_meta WHERE key = 'fetched_at'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read snapshot stamp: %w", err)
	}

	fetchedAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse snapshot stamp: %w", err)
	}
	return fetchedAt, nil
}

// Reset drops all local state: the snapshot and the journal.
func (c *Cache) Reset(ctx context.Context) error {
	for _, table := range []string{"case_snapshot", "snapshot_meta", "interactions"} {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
