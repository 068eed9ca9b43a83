package repository

import (
	"context"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultHistoryLimit = 50

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Record inserts the execution, or updates the row with the same action id
func (r *ExecutionRepository) Record(ctx context.Context, record *domain.ExecutionRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "action_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"account_address", "chain_id", "status", "path", "calls", "transaction_hash",
			"user_op_hash", "gas_used", "fallback_reason", "error_kind", "err_msg", "updated_at",
		}),
	}).Create(record).Error
}

// List returns the newest executions of owner first
func (r *ExecutionRepository) List(ctx context.Context, owner common.Address, limit int) ([]*domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var records []*domain.ExecutionRecord
	if err := r.db.WithContext(ctx).
		Where("owner_address = ?", owner.Hex()).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByActionID retrieves a specific execution by its action id
func (r *ExecutionRepository) FindByActionID(ctx context.Context, actionID string) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	if err := r.db.WithContext(ctx).Where("action_id = ?", actionID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
