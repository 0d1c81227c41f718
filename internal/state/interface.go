package state

import (
	"context"
	"io"
	"time"

	"github.com/ShayCichocki/council/internal/council"
)

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// RunStore handles run-history persistence.
type RunStore interface {
	RecordRun(ctx context.Context, res *council.Result) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]Run, error)
	PurgeOldRuns(olderThan time.Duration) (int64, error)
}

// StateStore is the full store used by the CLI.
type StateStore interface {
	io.Closer
	Migrator
	RunStore
}

var (
	_ StateStore       = (*DB)(nil)
	_ council.Recorder = (*DB)(nil)
)
