package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"GapSentinel/internal/logging"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *logrus.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so dashboards can read while runs are written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logging.OrDiscard(logger)}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.WithField("path", dbPath).Info("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS repair_runs (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp            INTEGER NOT NULL,
			run_id               TEXT NOT NULL,
			symbol               TEXT,
			strategy             TEXT,
			status               TEXT,
			error                TEXT,
			started_at           INTEGER,
			finished_at          INTEGER,
			backup_name          TEXT,
			gaps_detected        INTEGER,
			missing_points       INTEGER,
			timeframes_with_gaps INTEGER,
			gaps_fixed           INTEGER,
			points_added         INTEGER,
			timeframes_fixed     INTEGER,
			success_rate         REAL,
			gap_hours            REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON repair_runs(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON repair_runs(symbol)`,

		`CREATE TABLE IF NOT EXISTS timeframe_results (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp        INTEGER NOT NULL,
			run_id           TEXT NOT NULL,
			symbol           TEXT,
			timeframe        TEXT,
			row_count        INTEGER,
			interval_sec     INTEGER,
			mismatch         INTEGER,
			gaps             INTEGER,
			missing_points   INTEGER,
			strategy         TEXT,
			points_added     INTEGER,
			fix_error        TEXT,
			excluded_closed  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tf_run ON timeframe_results(run_id)`,

		`CREATE TABLE IF NOT EXISTS backup_cleanups (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			kept      INTEGER,
			deleted   INTEGER,
			error     TEXT
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(evt *RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO repair_runs
		(timestamp, run_id, symbol, strategy, status, error, started_at, finished_at, backup_name,
		 gaps_detected, missing_points, timeframes_with_gaps, gaps_fixed, points_added,
		 timeframes_fixed, success_rate, gap_hours)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.RunID, evt.Symbol, evt.Strategy, evt.Status, evt.Error,
		evt.StartedAt, evt.FinishedAt, evt.BackupName,
		evt.GapsDetected, evt.MissingPoints, evt.TimeframesWithGaps, evt.GapsFixed, evt.PointsAdded,
		evt.TimeframesFixed, evt.SuccessRate, evt.GapHours,
	)
	return err
}

func (r *SQLiteRecorder) RecordTimeframe(evt *TimeframeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mismatch := 0
	if evt.Mismatch {
		mismatch = 1
	}
	_, err := r.db.Exec(`INSERT INTO timeframe_results
		(timestamp, run_id, symbol, timeframe, row_count, interval_sec, mismatch, gaps, missing_points,
		 strategy, points_added, fix_error, excluded_closed)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.RunID, evt.Symbol, evt.Timeframe, evt.Rows, evt.IntervalSec, mismatch,
		evt.Gaps, evt.MissingPoints, evt.Strategy, evt.PointsAdded, evt.FixError, evt.ExcludedClosed,
	)
	return err
}

func (r *SQLiteRecorder) RecordCleanup(evt *CleanupEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO backup_cleanups (timestamp, kept, deleted, error) VALUES (?,?,?,?)`,
		time.Now().Unix(), evt.Kept, evt.Deleted, evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
