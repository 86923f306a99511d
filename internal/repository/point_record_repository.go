package repository

import (
	"context"

	"github.com/blues/wallet-reward/internal/model"
	"gorm.io/gorm"
)

// PointRecordRepository 积分流水存储
type PointRecordRepository struct {
	db *gorm.DB
}

// NewPointRecordRepository 创建积分流水存储
func NewPointRecordRepository(db *gorm.DB) *PointRecordRepository {
	return &PointRecordRepository{db: db}
}

// Create 写入积分流水
func (r *PointRecordRepository) Create(ctx context.Context, record *model.PointRecordModel) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// SumPoints 汇总 [start, end) 内指定来源的积分
func (r *PointRecordRepository) SumPoints(ctx context.Context, source string, identityIds []int64, start, end int64) (map[int64]float64, error) {
	result := make(map[int64]float64)
	if len(identityIds) == 0 {
		return result, nil
	}

	var rows []struct {
		IdentityId int64
		Total      float64
	}
	err := r.db.WithContext(ctx).Model(&model.PointRecordModel{}).
		Select("identity_id, SUM(points) AS total").
		Where("source = ? AND identity_id IN ? AND earned_at >= ? AND earned_at < ?", source, identityIds, start, end).
		Group("identity_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.IdentityId] = row.Total
	}
	return result, nil
}
