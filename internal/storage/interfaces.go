package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"decay-fit/internal/model"
)

// ResultStore persists batch result tables keyed by run ID.
type ResultStore interface {
	// SaveTable stores every record of table under runID atomically.
	// Returns ErrDuplicateKey if the run already exists.
	SaveTable(ctx context.Context, runID uuid.UUID, table model.ResultTable) error

	// ListRun returns the table of a run with records in their original order.
	// Returns ErrNotFound if the run does not exist.
	ListRun(ctx context.Context, runID uuid.UUID) (model.ResultTable, error)

	// Runs lists stored runs, newest first.
	Runs(ctx context.Context) ([]RunInfo, error)
}

// RunInfo summarises one stored run.
type RunInfo struct {
	ID        uuid.UUID
	Mode      model.FitMode
	Records   int
	CreatedAt time.Time
}
