package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletRewardModel 单个钱包在某一周期内的奖励
type WalletRewardModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PeriodId      int64           `json:"period_id" gorm:"not null;uniqueIndex:uk_wallet_reward_period_identity"`
	IdentityId    int64           `json:"identity_id" gorm:"not null;uniqueIndex:uk_wallet_reward_period_identity;index"`
	WalletAddress string          `json:"wallet_address" gorm:"size:42"`
	Points        float64         `json:"points" gorm:"not null;default:0"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:varchar(80);not null"`
	Enabled       bool            `json:"enabled"`
	TransactionId *int64          `json:"transaction_id" gorm:"index"` // 仅保存引用，不持有交易对象
}

// TableName 自定义表名
func (WalletRewardModel) TableName() string {
	return "wallet_reward"
}
