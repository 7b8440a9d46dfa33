package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"GapSentinel/internal/errs"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps snapshots in a single table; each Put is one INSERT.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "open sqlite %s", dbPath)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.IOFailure, err, "set WAL mode")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.IOFailure, err, "migrate")
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS backups (
			name       TEXT PRIMARY KEY,
			tag        TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			meta       TEXT NOT NULL,
			payload    BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_backups_created ON backups(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, snap Snapshot) error {
	if err := checkName(snap.Meta.Name); err != nil {
		return err
	}
	meta, err := json.Marshal(snap.Meta)
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "encode metadata")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO backups (name, tag, created_at, meta, payload)
		VALUES (?,?,?,?,?)`,
		snap.Meta.Name, snap.Meta.Tag, snap.Meta.CreatedAt.UnixNano(), string(meta), snap.Payload,
	)
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "insert backup %s", snap.Meta.Name)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metaRaw string
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT meta, payload FROM backups WHERE name = ?`, name).
		Scan(&metaRaw, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, errs.New(errs.NotFound, "backup %s not found", name)
	}
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.IOFailure, err, "query backup %s", name)
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
		return Snapshot{}, errs.Wrap(errs.Corrupt, err, "parse metadata %s", name)
	}
	return Snapshot{Meta: meta, Payload: payload}, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM backups WHERE name = ?`, name).Scan(&n); err != nil {
		return false, errs.Wrap(errs.IOFailure, err, "query backup %s", name)
	}
	return n > 0, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name, meta FROM backups ORDER BY created_at DESC`)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "list backups")
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, errs.Wrap(errs.IOFailure, err, "scan backup row")
		}
		var meta Metadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			// listed by name so Validate can report it
			meta = Metadata{Name: name}
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "iterate backups")
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE name = ?`, name)
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "delete backup %s", name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "backup %s not found", name)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
