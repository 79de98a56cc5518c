// Package store handles the SQLite sync journal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/rizexist/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for journal data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			ok INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS run_days (
			run_id TEXT NOT NULL,
			date TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (run_id, date)
		);`,
		`CREATE TABLE IF NOT EXISTS attribute_updates (
			run_id TEXT NOT NULL,
			date TEXT NOT NULL,
			attribute TEXT NOT NULL,
			metric TEXT NOT NULL,
			raw INTEGER NOT NULL,
			value INTEGER NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (run_id, date, attribute)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_run_days_date ON run_days(date);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// BeginRun records the start of a run and returns its id.
func (s *Store) BeginRun(ctx context.Context, mode string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, started_at) VALUES (?, ?, ?)`,
		id, mode, startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun marks a run as finished.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, ok bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, ok = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), boolToInt(ok), runID,
	)
	return err
}

// RecordDay stores one date's outcome and its attribute writes.
func (s *Store) RecordDay(ctx context.Context, runID string, day model.DayResult, recordedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	date := day.Date.Format(model.DateLayout)
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_days (run_id, date, recorded_at, succeeded, failed, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, date, recordedAt.UTC().Format(time.RFC3339Nano), day.Succeeded, day.Failed, errString(day.FetchErr),
	)
	if err != nil {
		return err
	}

	if len(day.Updates) > 0 {
		var stmt *sql.Stmt
		stmt, err = tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO attribute_updates (run_id, date, attribute, metric, raw, value, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, u := range day.Updates {
			if _, err = stmt.ExecContext(ctx, runID, date, u.Attribute, u.Metric, u.Raw, u.Value, errString(u.Err)); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

// ListRuns returns runs, newest first, filtered by cfg.
func (s *Store) ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunEntry, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Since != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, cfg.Since.UTC().Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, mode, started_at, COALESCE(finished_at, ''), COALESCE(ok, 0)
		FROM runs
		WHERE %s
		ORDER BY started_at DESC`, strings.Join(clauses, " AND "))
	if cfg.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, cfg.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunEntry
	for rows.Next() {
		var run model.RunEntry
		var startedAt, finishedAt string
		var ok int
		if err := rows.Scan(&run.ID, &run.Mode, &startedAt, &finishedAt, &ok); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if finishedAt != "" {
			if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
				return nil, err
			}
		}
		run.OK = ok != 0
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListDays returns the per-date outcomes of the given runs.
func (s *Store) ListDays(ctx context.Context, runIDs []string) ([]model.DayEntry, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(runIDs)
	query := fmt.Sprintf(`SELECT run_id, date, recorded_at, succeeded, failed, error
		FROM run_days
		WHERE run_id IN (%s)
		ORDER BY recorded_at DESC, date DESC`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var days []model.DayEntry
	for rows.Next() {
		var day model.DayEntry
		var recordedAt string
		if err := rows.Scan(&day.RunID, &day.Date, &recordedAt, &day.Succeeded, &day.Failed, &day.Error); err != nil {
			return nil, err
		}
		if day.StartedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return days, nil
}

// ListUpdates returns the attribute writes of one run and date.
func (s *Store) ListUpdates(ctx context.Context, runID, date string) ([]model.UpdateEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, date, attribute, value, error
		 FROM attribute_updates
		 WHERE run_id = ? AND date = ?
		 ORDER BY attribute ASC`, runID, date)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var updates []model.UpdateEntry
	for rows.Next() {
		var u model.UpdateEntry
		if err := rows.Scan(&u.RunID, &u.Date, &u.Attribute, &u.Value, &u.Error); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}

func inClause(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
