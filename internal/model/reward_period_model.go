package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RewardPeriodStatus 奖励周期状态
type RewardPeriodStatus string

const (
	RewardPeriodStatusNotStarted RewardPeriodStatus = "not_started" // 仅有预估，尚未发放
	RewardPeriodStatusInProgress RewardPeriodStatus = "in_progress" // 已开始发放
	RewardPeriodStatusSuccess    RewardPeriodStatus = "success"     // 全部发放成功
	RewardPeriodStatusPartial    RewardPeriodStatus = "partial"     // 无待处理交易但未全部成功
)

// RewardPeriodModel 奖励周期
type RewardPeriodModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PeriodType string             `json:"period_type" gorm:"size:16;not null;uniqueIndex:uk_reward_period_type_start"`
	StartTime  int64              `json:"start_time" gorm:"not null;uniqueIndex:uk_reward_period_type_start"` // 秒
	EndTime    int64              `json:"end_time" gorm:"not null"`                                           // 秒，不包含
	TimeZone   string             `json:"time_zone" gorm:"size:64;not null"`
	Status     RewardPeriodStatus `json:"status" gorm:"size:16;not null;index"`
	BudgetType string             `json:"budget_type" gorm:"size:32"`
	Budget     decimal.Decimal    `json:"budget" gorm:"type:varchar(80)"`
	Threshold  float64            `json:"threshold"`
}

// TableName 自定义表名
func (RewardPeriodModel) TableName() string {
	return "reward_period"
}
