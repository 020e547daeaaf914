package repository

import (
	"context"

	"cruisesync-service/internal/domain/entity"
)

// FlagRepository reads and clears the "needs price update" flags set by the
// external webhook handler
type FlagRepository interface {
	SelectFlagged(ctx context.Context, limit int) ([]entity.SailingRef, error)
	ClearFlag(ctx context.Context, sailingCode string) error
}
