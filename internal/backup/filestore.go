package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/logging"

	"github.com/sirupsen/logrus"
)

const (
	payloadExt = ".json"
	metaExt    = ".meta.json"
)

// FileStore keeps each snapshot as two files in one directory. The metadata file is
// written last and is the only thing List looks at, so a crash mid-Put leaves at most
// an orphaned payload.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	logger *logrus.Logger
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, logger *logrus.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "create backup dir %s", dir)
	}
	return &FileStore{dir: dir, logger: logging.OrDiscard(logger)}, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) payloadPath(name string) string { return filepath.Join(s.dir, name+payloadExt) }
func (s *FileStore) metaPath(name string) string    { return filepath.Join(s.dir, name+metaExt) }

func (s *FileStore) Put(_ context.Context, snap Snapshot) error {
	if err := checkName(snap.Meta.Name); err != nil {
		return err
	}
	meta, err := json.MarshalIndent(snap.Meta, "", "  ")
	if err != nil {
		return errs.Wrap(errs.IOFailure, err, "encode metadata")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.payloadPath(snap.Meta.Name), snap.Payload); err != nil {
		return errs.Wrap(errs.IOFailure, err, "write payload %s", snap.Meta.Name)
	}
	if err := writeAtomic(s.metaPath(snap.Meta.Name), meta); err != nil {
		_ = os.Remove(s.payloadPath(snap.Meta.Name))
		return errs.Wrap(errs.IOFailure, err, "write metadata %s", snap.Meta.Name)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, name string) (Snapshot, error) {
	if err := checkName(name); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.metaPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, errs.New(errs.NotFound, "backup %s not found", name)
	}
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.IOFailure, err, "read metadata %s", name)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Snapshot{}, errs.Wrap(errs.Corrupt, err, "parse metadata %s", name)
	}
	payload, err := os.ReadFile(s.payloadPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{Meta: meta}, errs.New(errs.Corrupt, "backup %s has no payload", name)
	}
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.IOFailure, err, "read payload %s", name)
	}
	return Snapshot{Meta: meta, Payload: payload}, nil
}

func (s *FileStore) Exists(_ context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.metaPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errs.Wrap(errs.IOFailure, err, "stat %s", name)
	}
	return true, nil
}

func (s *FileStore) List(_ context.Context) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "read backup dir %s", s.dir)
	}
	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaExt) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.logger.WithError(err).WithField("file", e.Name()).Warn("skipping unreadable backup metadata")
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			s.logger.WithError(err).WithField("file", e.Name()).Warn("skipping corrupt backup metadata")
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// metadata first: once it is gone the snapshot is no longer listed
	if err := os.Remove(s.metaPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errs.New(errs.NotFound, "backup %s not found", name)
		}
		return errs.Wrap(errs.IOFailure, err, "remove metadata %s", name)
	}
	if err := os.Remove(s.payloadPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errs.Wrap(errs.IOFailure, err, "remove payload %s", name)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// writeAtomic writes to a temp file in the target directory and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
