package model

import (
	"time"
)

const (
	LedgerStateLastWatchedBlock = "last_watched_block"
)

// LedgerStateModel 链同步状态
type LedgerStateModel struct {
	Key       string    `json:"key" gorm:"column:state_key;primaryKey;size:64"`
	Value     string    `json:"value" gorm:"size:255;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (LedgerStateModel) TableName() string {
	return "ledger_state"
}
