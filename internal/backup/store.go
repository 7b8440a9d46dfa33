// Package backup keeps named, checksummed snapshots of datasets taken before repair.
package backup

import (
	"context"
	"regexp"
	"time"

	"GapSentinel/internal/errs"
)

// Metadata describes a stored snapshot. It is persisted next to the payload.
type Metadata struct {
	Name        string    `json:"name"`
	Tag         string    `json:"tag"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Timeframes  []string  `json:"timeframes"`
	Rows        int       `json:"rows"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
}

// Snapshot is a metadata record plus its encoded payload.
type Snapshot struct {
	Meta    Metadata
	Payload []byte
}

// Store is durable named storage for snapshots. Put must be atomic: a snapshot is
// either fully listed and readable or absent.
type Store interface {
	Put(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, name string) (Snapshot, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]Metadata, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// checkName rejects names that could escape a store's namespace.
func checkName(name string) error {
	if !namePattern.MatchString(name) || len(name) > 200 {
		return errs.New(errs.InvalidInput, "invalid backup name %q", name)
	}
	return nil
}
