package repository

import (
	"context"
	"errors"
	"time"

	"github.com/blues/wallet-reward/internal/model"
	"gorm.io/gorm"
)

var activeStatuses = []model.TransactionStatus{
	model.TransactionStatusCreated,
	model.TransactionStatusPending,
	model.TransactionStatusReplaced,
}

// TransactionRepository 交易存储
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建交易存储
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx 返回绑定到事务的存储
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create 新建交易记录
func (r *TransactionRepository) Create(ctx context.Context, tx *model.TransactionModel) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// GetById 按主键查询，不存在时返回 nil
func (r *TransactionRepository) GetById(ctx context.Context, id int64) (*model.TransactionModel, error) {
	var tx model.TransactionModel
	err := r.db.WithContext(ctx).First(&tx, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetByHash 按哈希查询，不存在时返回 nil
func (r *TransactionRepository) GetByHash(ctx context.Context, hash string) (*model.TransactionModel, error) {
	var tx model.TransactionModel
	err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindByHashes 批量按哈希查询
func (r *TransactionRepository) FindByHashes(ctx context.Context, hashes []string) (map[string]*model.TransactionModel, error) {
	result := make(map[string]*model.TransactionModel, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	var txs []model.TransactionModel
	if err := r.db.WithContext(ctx).Where("hash IN ?", hashes).Find(&txs).Error; err != nil {
		return nil, err
	}
	for i := range txs {
		result[txs[i].GetHash()] = &txs[i]
	}
	return result, nil
}

// FindByIds 批量按主键查询
func (r *TransactionRepository) FindByIds(ctx context.Context, ids []int64) (map[int64]*model.TransactionModel, error) {
	result := make(map[int64]*model.TransactionModel, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var txs []model.TransactionModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&txs).Error; err != nil {
		return nil, err
	}
	for i := range txs {
		result[txs[i].Id] = &txs[i]
	}
	return result, nil
}

// MaxNonce 查询发送方在指定状态下的最大 nonce
func (r *TransactionRepository) MaxNonce(ctx context.Context, from string, statuses ...model.TransactionStatus) (int64, bool, error) {
	var result struct {
		MaxNonce *int64
	}
	err := r.db.WithContext(ctx).Model(&model.TransactionModel{}).
		Select("MAX(nonce) AS max_nonce").
		Where("from_address = ? AND status IN ?", from, statuses).
		Scan(&result).Error
	if err != nil {
		return 0, false, err
	}
	if result.MaxNonce == nil {
		return 0, false, nil
	}
	return *result.MaxNonce, true, nil
}

// FindPendingSentBefore 查询发送时间早于 sentBefore（毫秒）的待打包或已被替换的交易
func (r *TransactionRepository) FindPendingSentBefore(ctx context.Context, sentBefore int64, limit int) ([]model.TransactionModel, error) {
	var txs []model.TransactionModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND sent_timestamp < ?",
			[]model.TransactionStatus{model.TransactionStatusPending, model.TransactionStatusReplaced}, sentBefore).
		Order("from_address ASC, nonce ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// FindCreatedBefore 查询创建后一直未广播的交易
func (r *TransactionRepository) FindCreatedBefore(ctx context.Context, before time.Time, limit int) ([]model.TransactionModel, error) {
	var txs []model.TransactionModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.TransactionStatusCreated, before).
		Order("id ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// CountActiveBySenderNonce 统计同一 (sender, nonce) 上未终结的交易
func (r *TransactionRepository) CountActiveBySenderNonce(ctx context.Context, from string, nonce int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TransactionModel{}).
		Where("from_address = ? AND nonce = ? AND status IN ?", from, nonce, activeStatuses).
		Count(&count).Error
	return count, err
}

// UpdateActive 仅在交易未终结时更新，返回是否更新成功
func (r *TransactionRepository) UpdateActive(ctx context.Context, id int64, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TransactionModel{}).
		Where("id = ? AND status IN ?", id, activeStatuses).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkReplaced 将待打包交易标记为已被 replacedBy 替换
func (r *TransactionRepository) MarkReplaced(ctx context.Context, id int64, replacedBy string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TransactionModel{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":      model.TransactionStatusReplaced,
			"replaced_by": replacedBy,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RestoreReplaced 替换交易未能广播时，恢复被替换的交易为待打包
func (r *TransactionRepository) RestoreReplaced(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TransactionModel{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusReplaced).
		Updates(map[string]interface{}{
			"status":      model.TransactionStatusPending,
			"replaced_by": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindActiveBySenderNonce 查询同一 (sender, nonce) 上其他未终结的交易
func (r *TransactionRepository) FindActiveBySenderNonce(ctx context.Context, from string, nonce int64, excludeId int64) ([]model.TransactionModel, error) {
	var txs []model.TransactionModel
	err := r.db.WithContext(ctx).
		Where("from_address = ? AND nonce = ? AND id <> ? AND status IN ?", from, nonce, excludeId, activeStatuses).
		Find(&txs).Error
	return txs, err
}

// UpdateResent 重发时更新，使用发送次数做乐观锁
func (r *TransactionRepository) UpdateResent(ctx context.Context, id int64, attempts int, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.TransactionModel{}).
		Where("id = ? AND status = ? AND sending_attempt_count = ?", id, model.TransactionStatusPending, attempts).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FailSameNonce 将同一 (sender, nonce) 的其他未终结交易置为失败
func (r *TransactionRepository) FailSameNonce(ctx context.Context, from string, nonce int64, excludeId int64, reason string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.TransactionModel{}).
		Where("from_address = ? AND nonce = ? AND id <> ? AND status IN ?", from, nonce, excludeId, activeStatuses).
		Updates(map[string]interface{}{
			"status": model.TransactionStatusFailed,
			"error":  reason,
		})
	return result.RowsAffected, result.Error
}
