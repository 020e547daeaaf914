package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

const ledgerKeyPrefix = "cruisesync:progress:"

// RedisLedgerRepository implements the LedgerRepository interface. Each SET
// replaces the whole serialized ledger atomically, so a crash mid-run never
// leaves a partial record.
type RedisLedgerRepository struct {
	client *redis.Client
}

// NewRedisLedgerRepository creates a new Redis ledger repository
func NewRedisLedgerRepository(client *redis.Client) repository.LedgerRepository {
	return &RedisLedgerRepository{
		client: client,
	}
}

// Load fetches the ledger for a run scope; (nil, nil) when none exists
func (r *RedisLedgerRepository) Load(ctx context.Context, runID string) (*entity.SyncProgress, error) {
	data, err := r.client.Get(ctx, ledgerKeyPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger load %s: %w", runID, err)
	}

	var progress entity.SyncProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("ledger decode %s: %w", runID, err)
	}
	return &progress, nil
}

// Save persists the ledger in one atomic replace
func (r *RedisLedgerRepository) Save(ctx context.Context, progress *entity.SyncProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("ledger encode %s: %w", progress.RunID, err)
	}
	if err := r.client.Set(ctx, ledgerKeyPrefix+progress.RunID, data, 0).Err(); err != nil {
		return fmt.Errorf("ledger save %s: %w", progress.RunID, err)
	}
	return nil
}

// Clear removes the ledger after a fully clean run
func (r *RedisLedgerRepository) Clear(ctx context.Context, runID string) error {
	return r.client.Del(ctx, ledgerKeyPrefix+runID).Err()
}
