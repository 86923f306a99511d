package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/blues/wallet-reward/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStateRepository 链同步状态存储
type LedgerStateRepository struct {
	db *gorm.DB
}

// NewLedgerStateRepository 创建链同步状态存储
func NewLedgerStateRepository(db *gorm.DB) *LedgerStateRepository {
	return &LedgerStateRepository{db: db}
}

// GetUint 读取数值状态
func (r *LedgerStateRepository) GetUint(ctx context.Context, key string) (uint64, bool, error) {
	var state model.LedgerStateModel
	err := r.db.WithContext(ctx).Where("state_key = ?", key).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseUint(state.Value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// SetUint 写入数值状态
func (r *LedgerStateRepository) SetUint(ctx context.Context, key string, value uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model.LedgerStateModel{Key: key, Value: strconv.FormatUint(value, 10)}).Error
}
