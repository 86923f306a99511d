package model

import (
	"time"
)

// PointRecordModel 积分流水
type PointRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Source      string  `json:"source" gorm:"size:64;not null;index:idx_point_source_time"` // 积分来源，对应插件 ID
	IdentityId  int64   `json:"identity_id" gorm:"not null;index"`
	Points      float64 `json:"points" gorm:"not null"`
	EarnedAt    int64   `json:"earned_at" gorm:"not null;index:idx_point_source_time"` // 秒
	Description string  `json:"description" gorm:"size:255"`
}

// TableName 自定义表名
func (PointRecordModel) TableName() string {
	return "point_record"
}
