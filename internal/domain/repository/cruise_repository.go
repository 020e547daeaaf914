package repository

import (
	"context"

	"cruisesync-service/internal/domain/entity"
)

// CruiseRepository defines the entity upsert layer. UpsertSailing writes one
// document's sailing, itinerary and pricing in a single transaction: partial
// failure must roll back the whole document.
type CruiseRepository interface {
	UpsertSailing(ctx context.Context, sailing *entity.Sailing, pricing *entity.CanonicalPricing, itinerary []entity.ItineraryDay) error
}
