package repository

import (
	"context"

	"cruisesync-service/internal/domain/entity"
)

// LedgerRepository persists the SyncProgress ledger per run scope.
// Load returns (nil, nil) when no ledger exists for the run. Save must be an
// atomic replace so a crash never leaves a partial ledger behind.
type LedgerRepository interface {
	Load(ctx context.Context, runID string) (*entity.SyncProgress, error)
	Save(ctx context.Context, progress *entity.SyncProgress) error
	Clear(ctx context.Context, runID string) error
}
