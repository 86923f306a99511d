package repository

import (
	"context"
	"errors"

	"github.com/blues/wallet-reward/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardRepository 奖励周期与钱包奖励存储
type RewardRepository struct {
	db *gorm.DB
}

// NewRewardRepository 创建奖励存储
func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// WithTx 返回绑定到事务的存储
func (r *RewardRepository) WithTx(tx *gorm.DB) *RewardRepository {
	return &RewardRepository{db: tx}
}

// GetPeriod 按 (类型, 开始时间) 查询周期，不存在时返回 nil
func (r *RewardRepository) GetPeriod(ctx context.Context, periodType string, startTime int64) (*model.RewardPeriodModel, error) {
	var period model.RewardPeriodModel
	err := r.db.WithContext(ctx).
		Where("period_type = ? AND start_time = ?", periodType, startTime).
		First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

// GetPeriodById 按主键查询周期，不存在时返回 nil
func (r *RewardRepository) GetPeriodById(ctx context.Context, id int64) (*model.RewardPeriodModel, error) {
	var period model.RewardPeriodModel
	err := r.db.WithContext(ctx).First(&period, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

// EnsurePeriod 周期不存在时创建，返回库中的记录
func (r *RewardRepository) EnsurePeriod(ctx context.Context, period *model.RewardPeriodModel) (*model.RewardPeriodModel, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "period_type"}, {Name: "start_time"}},
			DoNothing: true,
		}).
		Create(period).Error
	if err != nil {
		return nil, err
	}
	stored, err := r.GetPeriod(ctx, period.PeriodType, period.StartTime)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return stored, nil
}

// UpdatePeriodStatus 更新周期状态
func (r *RewardRepository) UpdatePeriodStatus(ctx context.Context, id int64, status model.RewardPeriodStatus) error {
	return r.db.WithContext(ctx).Model(&model.RewardPeriodModel{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// FindPeriodsByStatus 按状态查询周期
func (r *RewardRepository) FindPeriodsByStatus(ctx context.Context, statuses ...model.RewardPeriodStatus) ([]model.RewardPeriodModel, error) {
	var periods []model.RewardPeriodModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("start_time ASC").
		Find(&periods).Error
	return periods, err
}

// FindRewardsByPeriod 查询周期内的全部钱包奖励
func (r *RewardRepository) FindRewardsByPeriod(ctx context.Context, periodId int64) ([]model.WalletRewardModel, error) {
	var rewards []model.WalletRewardModel
	err := r.db.WithContext(ctx).
		Where("period_id = ?", periodId).
		Order("identity_id ASC").
		Find(&rewards).Error
	return rewards, err
}

// FindRewardsByIdentity 查询用户的奖励历史
func (r *RewardRepository) FindRewardsByIdentity(ctx context.Context, identityId int64, limit int) ([]model.WalletRewardModel, error) {
	var rewards []model.WalletRewardModel
	err := r.db.WithContext(ctx).
		Where("identity_id = ?", identityId).
		Order("period_id DESC").
		Limit(limit).
		Find(&rewards).Error
	return rewards, err
}

// SaveReward 按 (周期, 用户) 写入奖励，不覆盖已关联的交易
func (r *RewardRepository) SaveReward(ctx context.Context, reward *model.WalletRewardModel) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "period_id"}, {Name: "identity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"wallet_address", "points", "amount", "enabled", "updated_at"}),
		}).
		Create(reward).Error
	if err != nil {
		return err
	}

	// 冲突更新时部分数据库不会回填主键
	var stored model.WalletRewardModel
	if err := r.db.WithContext(ctx).
		Where("period_id = ? AND identity_id = ?", reward.PeriodId, reward.IdentityId).
		First(&stored).Error; err != nil {
		return err
	}
	reward.Id = stored.Id
	reward.TransactionId = stored.TransactionId
	return nil
}

// SetRewardTransaction 关联奖励与交易
func (r *RewardRepository) SetRewardTransaction(ctx context.Context, rewardId int64, transactionId int64) error {
	return r.db.WithContext(ctx).Model(&model.WalletRewardModel{}).
		Where("id = ?", rewardId).
		Update("transaction_id", transactionId).Error
}

// ReplaceTransaction 将引用旧交易的奖励改为引用新交易
func (r *RewardRepository) ReplaceTransaction(ctx context.Context, oldTransactionId, newTransactionId int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.WalletRewardModel{}).
		Where("transaction_id = ?", oldTransactionId).
		Update("transaction_id", newTransactionId)
	return result.RowsAffected, result.Error
}
