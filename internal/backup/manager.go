package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/logging"
	"GapSentinel/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTag is used when Create is called without a tag.
	DefaultTag = "data"

	nameTimeLayout = "20060102_150405"
	maxNameTag     = 64
)

// Validation is the structural check result of one snapshot.
type Validation struct {
	Name    string    `json:"name"`
	Valid   bool      `json:"valid"`
	Reasons []string  `json:"reasons,omitempty"`
	Meta    *Metadata `json:"metadata,omitempty"`
}

// Manager creates, restores and prunes snapshots on top of a Store.
type Manager struct {
	store  Store
	now    func() time.Time
	logger *logrus.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wraps store.
func NewManager(store Store, logger *logrus.Logger, opts ...Option) *Manager {
	m := &Manager{store: store, now: time.Now, logger: logging.OrDiscard(logger)}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Create snapshots ds under a name derived from tag and the current time and returns it.
func (m *Manager) Create(ctx context.Context, ds model.Dataset, tag, description string) (string, error) {
	if tag == "" {
		tag = DefaultTag
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return "", errs.Wrap(errs.InvalidInput, err, "encode dataset")
	}

	now := m.now().UTC()
	name, err := m.uniqueName(ctx, fmt.Sprintf("%s_backup_%s", nameTag(tag), now.Format(nameTimeLayout)))
	if err != nil {
		return "", err
	}
	meta := Metadata{
		Name:        name,
		Tag:         tag,
		Description: description,
		CreatedAt:   now,
		Timeframes:  ds.Timeframes(),
		Rows:        ds.Rows(),
		Size:        int64(len(payload)),
		Checksum:    checksum(payload),
	}
	if err := m.store.Put(ctx, Snapshot{Meta: meta, Payload: payload}); err != nil {
		return "", err
	}
	m.logger.WithFields(logrus.Fields{
		"backup":     name,
		"timeframes": len(meta.Timeframes),
		"rows":       meta.Rows,
	}).Info("backup created")
	return name, nil
}

func (m *Manager) uniqueName(ctx context.Context, base string) (string, error) {
	name := base
	for i := 2; ; i++ {
		ok, err := m.store.Exists(ctx, name)
		if err != nil {
			return "", err
		}
		if !ok {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d", base, i)
	}
}

// nameTag maps tag onto the characters allowed in a snapshot name. Symbols such as
// "^GSPC" or "EURUSD=X" become "GSPC" and "EURUSD_X"; Metadata.Tag keeps the original.
func nameTag(tag string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			return r
		}
		return '_'
	}, tag)
	safe = strings.TrimLeft(safe, "_.-")
	if len(safe) > maxNameTag {
		safe = safe[:maxNameTag]
	}
	if safe == "" {
		return DefaultTag
	}
	return safe
}

// collisionSeq returns the _N suffix added on a name collision; 1 when there is none.
func collisionSeq(name string) int {
	i := strings.LastIndex(name, "_backup_")
	if i < 0 {
		return 1
	}
	rest := name[i+len("_backup_"):]
	if len(rest) <= len(nameTimeLayout)+1 || rest[len(nameTimeLayout)] != '_' {
		return 1
	}
	n, err := strconv.Atoi(rest[len(nameTimeLayout)+1:])
	if err != nil {
		return 1
	}
	return n
}

// Restore loads and verifies a snapshot.
func (m *Manager) Restore(ctx context.Context, name string) (model.Dataset, Metadata, error) {
	snap, err := m.store.Get(ctx, name)
	if err != nil {
		return nil, Metadata{}, err
	}
	if got := checksum(snap.Payload); got != snap.Meta.Checksum {
		return nil, snap.Meta, errs.New(errs.Corrupt, "backup %s: checksum mismatch", name)
	}
	var ds model.Dataset
	if err := json.Unmarshal(snap.Payload, &ds); err != nil {
		return nil, snap.Meta, errs.Wrap(errs.Corrupt, err, "backup %s: decode payload", name)
	}
	m.logger.WithField("backup", name).Info("backup restored")
	return ds, snap.Meta, nil
}

// List returns snapshots newest first, restricted to tag when it is non-empty.
func (m *Manager) List(ctx context.Context, tag string) ([]Metadata, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(all))
	for _, meta := range all {
		if tag != "" && meta.Tag != tag {
			continue
		}
		out = append(out, meta)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if si, sj := collisionSeq(out[i].Name), collisionSeq(out[j].Name); si != sj {
			return si > sj
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Cleanup keeps the newest keep snapshots and deletes the rest. It carries on past
// individual failures and returns how many were removed alongside the joined errors.
func (m *Manager) Cleanup(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, errs.New(errs.InvalidInput, "keep must be >= 0, got %d", keep)
	}
	all, err := m.List(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(all) <= keep {
		return 0, nil
	}
	deleted := 0
	var failures []error
	for _, meta := range all[keep:] {
		if err := m.store.Delete(ctx, meta.Name); err != nil {
			m.logger.WithError(err).WithField("backup", meta.Name).Warn("backup cleanup failed")
			failures = append(failures, err)
			continue
		}
		deleted++
	}
	m.logger.WithFields(logrus.Fields{"deleted": deleted, "kept": keep}).Info("backup cleanup complete")
	return deleted, errors.Join(failures...)
}

// Validate checks that a snapshot is readable and self-consistent. A missing snapshot
// is an error; a damaged one is reported through Validation.
func (m *Manager) Validate(ctx context.Context, name string) (Validation, error) {
	v := Validation{Name: name}
	snap, err := m.store.Get(ctx, name)
	switch {
	case errs.Is(err, errs.Corrupt):
		v.Reasons = append(v.Reasons, err.Error())
		return v, nil
	case err != nil:
		return v, err
	}
	meta := snap.Meta
	v.Meta = &meta

	if int64(len(snap.Payload)) != meta.Size {
		v.Reasons = append(v.Reasons, fmt.Sprintf("size mismatch: metadata %d, payload %d", meta.Size, len(snap.Payload)))
	}
	if got := checksum(snap.Payload); got != meta.Checksum {
		v.Reasons = append(v.Reasons, "checksum mismatch")
	}
	var ds model.Dataset
	if err := json.Unmarshal(snap.Payload, &ds); err != nil {
		v.Reasons = append(v.Reasons, fmt.Sprintf("payload does not decode: %v", err))
	} else if ds.Rows() != meta.Rows {
		v.Reasons = append(v.Reasons, fmt.Sprintf("row count mismatch: metadata %d, payload %d", meta.Rows, ds.Rows()))
	}
	v.Valid = len(v.Reasons) == 0
	return v, nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
