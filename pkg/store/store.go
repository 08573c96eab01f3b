// Package store persists the most recent HRV snapshot.
package store

import (
	"context"
	"fmt"

	"github.com/itohio/gopulse/pkg/config"
	"github.com/itohio/gopulse/pkg/hrv"
)

// Store keeps the latest snapshot. Save overwrites whatever was stored before.
// Load reports found=false when nothing has been stored yet.
type Store interface {
	Save(ctx context.Context, s hrv.Snapshot) error
	Load(ctx context.Context) (s hrv.Snapshot, found bool, err error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLStore)(nil)
)

// Open creates the store selected by cfg.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.Path), nil
	case BackendSQLite:
		return OpenSQL(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
