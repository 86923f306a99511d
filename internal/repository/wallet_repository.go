package repository

import (
	"context"
	"strings"

	"github.com/blues/wallet-reward/internal/model"
	"gorm.io/gorm"
)

// WalletRepository 钱包只读查询
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建钱包查询
func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// ListIdentityIds 返回所有拥有钱包的用户，包括已禁用和已删除的
func (r *WalletRepository) ListIdentityIds(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Unscoped().Model(&model.WalletModel{}).
		Distinct("identity_id").
		Order("identity_id ASC").
		Pluck("identity_id", &ids).Error
	return ids, err
}

// FindByIdentityIds 批量查询钱包，包括已删除的
func (r *WalletRepository) FindByIdentityIds(ctx context.Context, identityIds []int64) (map[int64]*model.WalletModel, error) {
	result := make(map[int64]*model.WalletModel, len(identityIds))
	if len(identityIds) == 0 {
		return result, nil
	}

	var wallets []model.WalletModel
	if err := r.db.WithContext(ctx).Unscoped().Where("identity_id IN ?", identityIds).Find(&wallets).Error; err != nil {
		return nil, err
	}
	for i := range wallets {
		result[wallets[i].IdentityId] = &wallets[i]
	}
	return result, nil
}

// IsTracked 地址是否属于本系统的有效钱包
func (r *WalletRepository) IsTracked(ctx context.Context, address string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WalletModel{}).
		Where("LOWER(address) = ?", strings.ToLower(address)).
		Count(&count).Error
	return count > 0, err
}
