package storage

import (
	"context"

	"keepaway/internal/model"
)

// Store persists run records. ListRuns returns newest first; limit <= 0
// returns every record.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}
