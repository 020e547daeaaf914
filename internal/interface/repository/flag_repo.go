package repository

import (
	"context"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/internal/domain/repository"

	"gorm.io/gorm"
)

// GormFlagRepository implements the FlagRepository interface over the
// needs_price_update column the webhook handler sets
type GormFlagRepository struct {
	db *gorm.DB
}

// NewGormFlagRepository creates a new GORM flag repository
func NewGormFlagRepository(db *gorm.DB) repository.FlagRepository {
	return &GormFlagRepository{
		db: db,
	}
}

// SelectFlagged returns up to limit sailings awaiting a price refresh,
// oldest first so no flagged sailing starves
func (r *GormFlagRepository) SelectFlagged(ctx context.Context, limit int) ([]entity.SailingRef, error) {
	var rows []Cruises
	result := r.db.WithContext(ctx).
		Where("needs_price_update = ?", true).
		Order("updated_at asc").
		Limit(limit).
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	refs := make([]entity.SailingRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, entity.SailingRef{
			SailingCode: row.SailingCode,
			LineID:      row.LineID,
			ShipID:      row.ShipID,
			FilePath:    row.FilePath,
		})
	}
	return refs, nil
}

// ClearFlag marks one sailing as refreshed
func (r *GormFlagRepository) ClearFlag(ctx context.Context, sailingCode string) error {
	return r.db.WithContext(ctx).
		Model(&Cruises{}).
		Where("sailing_code = ?", sailingCode).
		Update("needs_price_update", false).Error
}
