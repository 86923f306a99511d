package model

import (
	"time"

	"gorm.io/gorm"
)

// WalletModel 用户钱包（由钱包服务维护，这里只读）
type WalletModel struct {
	Id        int64          `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	IdentityId int64  `json:"identity_id" gorm:"not null;uniqueIndex"`
	Address    string `json:"address" gorm:"size:42;index"`
	Enabled    bool   `json:"enabled"`
}

// IsEligible 钱包是否可以接收奖励
func (w *WalletModel) IsEligible() bool {
	return w.Enabled && !w.DeletedAt.Valid && w.Address != ""
}

// TableName 自定义表名
func (WalletModel) TableName() string {
	return "wallet"
}
