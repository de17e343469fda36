package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the queryable companion to the JSONL ledger: the same entries,
// flattened into one row per attempt. The ledger stays the source of truth;
// the store is rebuilt from it on demand.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the batch's run database.
func OpenStore(dir, batchID string) (*Store, error) {
	dbPath := filepath.Join(dir, batchID+"_runlog.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.createSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) createSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    media_filename TEXT,
    status TEXT NOT NULL,
    stages_ran INTEGER NOT NULL,
    stages_skipped INTEGER NOT NULL,
    stages_failed INTEGER NOT NULL,
    post_proc_errors TEXT,
    error TEXT,
    cleanup TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    elapsed_seconds REAL NOT NULL,
    UNIQUE (run_id, asset_id)
);
CREATE INDEX IF NOT EXISTS idx_attempts_asset ON attempts(asset_id);
CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Sync replays ledger entries into the store. Rows already present for a
// (run, asset) pair are left untouched, so replaying the whole ledger after
// every run is safe.
func (s *Store) Sync(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO attempts (
    run_id, batch_id, asset_id, ordinal, media_filename, status,
    stages_ran, stages_skipped, stages_failed, post_proc_errors,
    error, cleanup, started_at, finished_at, elapsed_seconds
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		ran, skipped, failed := entry.StageCounts()
		if _, err := stmt.ExecContext(ctx,
			entry.RunID,
			entry.BatchID,
			entry.AssetID,
			entry.Ordinal,
			nullableString(entry.MediaFilename),
			entry.Status,
			ran,
			skipped,
			failed,
			nullableString(strings.Join(entry.PostProcErrors, "; ")),
			nullableString(entry.Error),
			nullableString(entry.Cleanup),
			entry.StartedAt.UTC().Format(time.RFC3339Nano),
			entry.FinishedAt.UTC().Format(time.RFC3339Nano),
			entry.Elapsed().Seconds(),
		); err != nil {
			return fmt.Errorf("insert attempt for %s: %w", entry.AssetID, err)
		}
	}
	return tx.Commit()
}

// CountByStatus returns attempt counts per status across all runs.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM attempts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// FailedAssets returns the asset ids whose latest attempt failed, ordered
// by ordinal.
func (s *Store) FailedAssets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT asset_id FROM attempts a
WHERE a.id = (SELECT MAX(id) FROM attempts WHERE asset_id = a.asset_id)
  AND a.status = ?
ORDER BY a.ordinal`, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("query failed assets: %w", err)
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var asset string
		if err := rows.Scan(&asset); err != nil {
			return nil, fmt.Errorf("scan failed asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
