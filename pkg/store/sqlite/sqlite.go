// Package sqlite keeps a durable ledger of pipeline runs so statistics
// can be compared across scopes and over time.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Sternrassler/cadseq/pkg/harvest"
	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Run for an unknown run id.
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the SQLite run ledger. It implements harvest.Recorder.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ harvest.Recorder = (*Store)(nil)

// Open opens the ledger at path with WAL mode enabled, creating the
// schema when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Concurrent pipeline runs share the ledger; one connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		logger: logging.NewLogger(logging.ComponentStore),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	scope_id TEXT NOT NULL,
	total INTEGER NOT NULL,
	valid INTEGER NOT NULL,
	reasons TEXT,
	started_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS runs_scope ON runs(scope_id, started_at);

CREATE TABLE IF NOT EXISTS run_outcomes (
	run_id TEXT NOT NULL,
	outcome INTEGER NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY(run_id, outcome),
	FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// SaveRun stores stat under its RunID, replacing an earlier save of the
// same run.
func (s *Store) SaveRun(ctx context.Context, stat *harvest.Statistic) error {
	if stat == nil || stat.RunID == "" {
		return errors.New("statistic without run id")
	}

	reasons, err := json.Marshal(stat.Reasons)
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, stat.RunID); err != nil {
		return fmt.Errorf("replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs(run_id, scope_id, total, valid, reasons, started_at, duration_ms) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		stat.RunID, stat.ScopeID, stat.Total, stat.Valid, string(reasons),
		stat.StartedAt.UTC().Format(timeLayout), stat.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, b := range stat.Distribution {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_outcomes(run_id, outcome, count) VALUES(?, ?, ?)`,
			stat.RunID, b.Outcome, b.Count); err != nil {
			return fmt.Errorf("insert outcome %d: %w", b.Outcome, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Debug().
		Str("run_id", stat.RunID).
		Str("scope", stat.ScopeID).
		Msg("Run recorded")
	return nil
}

// Run returns the statistic of one run.
func (s *Store) Run(ctx context.Context, runID string) (*harvest.Statistic, error) {
	stats, err := s.query(ctx, `WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return stats[0], nil
}

// Runs lists runs newest first. An empty scopeID lists every scope.
func (s *Store) Runs(ctx context.Context, scopeID string) ([]*harvest.Statistic, error) {
	if scopeID == "" {
		return s.query(ctx, ``)
	}
	return s.query(ctx, `WHERE scope_id = ?`, scopeID)
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]*harvest.Statistic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, scope_id, total, valid, reasons, started_at, duration_ms FROM runs `+where+
			` ORDER BY started_at DESC, run_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var (
		stats []*harvest.Statistic
		byID  = make(map[string]*harvest.Statistic)
	)
	for rows.Next() {
		var (
			stat       harvest.Statistic
			reasons    sql.NullString
			startedAt  string
			durationMs int64
		)
		if err := rows.Scan(&stat.RunID, &stat.ScopeID, &stat.Total, &stat.Valid, &reasons, &startedAt, &durationMs); err != nil {
			return nil, err
		}
		if reasons.Valid && reasons.String != "" && reasons.String != "null" {
			if err := json.Unmarshal([]byte(reasons.String), &stat.Reasons); err != nil {
				return nil, fmt.Errorf("decode reasons of %s: %w", stat.RunID, err)
			}
		}
		if t, err := time.Parse(timeLayout, startedAt); err == nil {
			stat.StartedAt = t
		}
		stat.Duration = time.Duration(durationMs) * time.Millisecond
		stat.Distribution = []harvest.Bucket{}

		stats = append(stats, &stat)
		byID[stat.RunID] = &stat
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(stats) == 0 {
		return stats, nil
	}

	if err := s.loadOutcomes(ctx, byID); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) loadOutcomes(ctx context.Context, byID map[string]*harvest.Statistic) error {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, outcome, count FROM run_outcomes ORDER BY run_id, outcome`)
	if err != nil {
		return fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			runID string
			b     harvest.Bucket
		)
		if err := rows.Scan(&runID, &b.Outcome, &b.Count); err != nil {
			return err
		}
		if stat, ok := byID[runID]; ok {
			stat.Distribution = append(stat.Distribution, b)
		}
	}
	return rows.Err()
}
