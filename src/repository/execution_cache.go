package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/go-redis/redis/v8"
)

const executionCacheTTL = 24 * time.Hour

// ExecutionCacheRepository keeps per-action execution status in Redis
type ExecutionCacheRepository struct {
	redis       *redis.Client
	statusCache string
}

// NewExecutionCacheRepository creates a cache repository storing keys under prefix:status:<actionID>
func NewExecutionCacheRepository(redis *redis.Client, prefix string) *ExecutionCacheRepository {
	return &ExecutionCacheRepository{
		redis:       redis,
		statusCache: prefix + ":status",
	}
}

func (r *ExecutionCacheRepository) statusKey(actionID string) string {
	return fmt.Sprintf("%s:%s", r.statusCache, actionID)
}

// Claim stores entry unless the action id is pending or finished. A concurrent write to the
// same key makes the claim fail with domain.ErrActionInFlight.
func (r *ExecutionCacheRepository) Claim(ctx context.Context, entry *domain.ExecutionCache) error {
	key := r.statusKey(entry.ActionID)

	err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := getExecutionCache(ctx, tx, key)
		if err != nil && !errors.Is(err, domain.ErrExecutionNotFound) {
			return err
		}
		if !existing.Claimable() {
			return domain.ErrActionInFlight
		}

		entry.UpdatedAt = time.Now()
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal execution cache: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, executionCacheTTL)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrActionInFlight
	}
	return err
}

// Update overwrites the status entry with 24-hour expiration
func (r *ExecutionCacheRepository) Update(ctx context.Context, entry *domain.ExecutionCache) error {
	entry.UpdatedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal execution cache: %w", err)
	}
	return r.redis.Set(ctx, r.statusKey(entry.ActionID), data, executionCacheTTL).Err()
}

// Get returns domain.ErrExecutionNotFound when the entry is missing or expired
func (r *ExecutionCacheRepository) Get(ctx context.Context, actionID string) (*domain.ExecutionCache, error) {
	return getExecutionCache(ctx, r.redis, r.statusKey(actionID))
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getExecutionCache(ctx context.Context, c stringGetter, key string) (*domain.ExecutionCache, error) {
	data, err := c.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, domain.ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}

	var entry domain.ExecutionCache
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution cache: %w", err)
	}
	return &entry, nil
}

// CacheStatistics represents the current state of the execution cache
type CacheStatistics struct {
	PendingCount   int `json:"pending_count"`
	AmbiguousCount int `json:"ambiguous_count"`
	FailedCount    int `json:"failed_count"`
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
}

// Statistics counts cached entries by status
func (r *ExecutionCacheRepository) Statistics(ctx context.Context) (*CacheStatistics, error) {
	stats := &CacheStatistics{}

	iter := r.redis.Scan(ctx, 0, r.statusCache+":*", 100).Iterator()
	for iter.Next(ctx) {
		entry, err := getExecutionCache(ctx, r.redis, iter.Val())
		if err != nil {
			// Skip keys that expired between scan and get
			if errors.Is(err, domain.ErrExecutionNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to get execution cache for key %s: %w", iter.Val(), err)
		}

		switch entry.Status {
		case domain.ExecutionStatusPending:
			stats.PendingCount++
		case domain.ExecutionStatusAmbiguous:
			stats.AmbiguousCount++
		case domain.ExecutionStatusFailed:
			stats.FailedCount++
		case domain.ExecutionStatusCompleted:
			stats.CompletedCount++
		}
		stats.TotalCount++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan status keys: %w", err)
	}

	return stats, nil
}
