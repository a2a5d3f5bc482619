package runstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"billsync/internal/config"
)

// Store persists run history and the submission ledger in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Run is one recorded pipeline execution.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	DryRun       bool
	FetchedCount int
	SuccessCount int
	SkippedCount int
	FailedCount  int
	Error        string
}

// Outcome is one project's recorded result within a run.
type Outcome struct {
	ProjectID    string
	ProjectTitle string
	Kind         string
	Detail       string
	InvoiceID    string
	Attempts     int
}

// Open initializes or connects to the run database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.RunDBPath())
}

// OpenPath opens the store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.migrateSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

//go:embed migrations/*.sql
var schemaFS embed.FS

// migrateSchema applies any embedded schema files whose version is not
// yet recorded in schema_migrations. Files apply in lexical order
// within a single transaction, so a failed upgrade leaves the database
// at the previous version.
func (s *Store) migrateSchema(ctx context.Context) error {
	names, err := fs.Glob(schemaFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := tx.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}
	_ = rows.Close()

	for _, name := range names {
		version := strings.TrimSuffix(path.Base(name), ".sql")
		if applied[version] {
			continue
		}
		ddl, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read schema file %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply schema %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record schema %s: %w", version, err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a new run row and returns its ID.
func (s *Store) BeginRun(ctx context.Context, dryRun bool) (string, error) {
	id := uuid.NewString()
	started := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, dry_run) VALUES (?, ?, ?)",
		id, started, boolToInt(dryRun),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun records a run's final counters, error, and per-project
// outcomes in one transaction.
func (s *Store) FinishRun(ctx context.Context, runID string, run Run, outcomes []Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	finished := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, fetched_count = ?, success_count = ?,
            skipped_count = ?, failed_count = ?, error = ? WHERE id = ?`,
		finished, run.FetchedCount, run.SuccessCount, run.SkippedCount,
		run.FailedCount, nullableString(run.Error), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	for _, outcome := range outcomes {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_outcomes (run_id, project_id, project_title, kind, detail, invoice_id, attempts)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, outcome.ProjectID, outcome.ProjectTitle, outcome.Kind,
			outcome.Detail, outcome.InvoiceID, outcome.Attempts,
		)
		if err != nil {
			return fmt.Errorf("insert outcome for %s: %w", outcome.ProjectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish tx: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, dry_run, fetched_count,
            success_count, skipped_count, failed_count, error
         FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		var finished, runErr sql.NullString
		var dryRun int
		if err := rows.Scan(&run.ID, &started, &finished, &dryRun, &run.FetchedCount,
			&run.SuccessCount, &run.SkippedCount, &run.FailedCount, &runErr); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		run.DryRun = dryRun != 0
		run.Error = runErr.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunOutcomes returns the recorded per-project outcomes for a run.
func (s *Store) RunOutcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, project_title, kind, detail, invoice_id, attempts
         FROM run_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var outcome Outcome
		if err := rows.Scan(&outcome.ProjectID, &outcome.ProjectTitle, &outcome.Kind,
			&outcome.Detail, &outcome.InvoiceID, &outcome.Attempts); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

// RemoteID looks up the remote billing ID recorded for a correlation key.
func (s *Store) RemoteID(correlationKey string) (string, bool, error) {
	var remoteID string
	err := s.db.QueryRow(
		"SELECT remote_id FROM submissions WHERE correlation_key = ?",
		correlationKey,
	).Scan(&remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query submission ledger: %w", err)
	}
	return remoteID, true, nil
}

// RecordSubmission upserts the correlation key to remote ID mapping.
func (s *Store) RecordSubmission(correlationKey, remoteID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO submissions (correlation_key, remote_id, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(correlation_key) DO UPDATE SET remote_id = excluded.remote_id, updated_at = excluded.updated_at`,
		correlationKey, remoteID, now,
	)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
