package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus 交易状态
type TransactionStatus string

const (
	TransactionStatusCreated   TransactionStatus = "created"   // 已预留 nonce，尚未广播
	TransactionStatusPending   TransactionStatus = "pending"   // 已广播，等待打包
	TransactionStatusReplaced  TransactionStatus = "replaced"  // 已被同 nonce 的新交易替换，仍可能上链
	TransactionStatusSucceeded TransactionStatus = "succeeded" // 已打包且执行成功
	TransactionStatusFailed    TransactionStatus = "failed"    // 终态失败
)

// IsTerminal 是否为终态
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSucceeded || s == TransactionStatusFailed
}

// TransactionModel 链上交易记录
type TransactionModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Hash                *string           `json:"hash" gorm:"uniqueIndex;size:66"`
	FromAddress         string            `json:"from_address" gorm:"size:42;not null;index:idx_tx_from_nonce"`
	ToAddress           string            `json:"to_address" gorm:"size:42;not null"`
	ContractAddress     string            `json:"contract_address" gorm:"size:42"` // 为空表示原生币转账
	Value               decimal.Decimal   `json:"value" gorm:"type:varchar(80);not null"`
	ContractAmount      decimal.Decimal   `json:"contract_amount" gorm:"type:varchar(80);not null"`
	Nonce               int64             `json:"nonce" gorm:"not null;index:idx_tx_from_nonce"`
	RawTransaction      string            `json:"-" gorm:"type:text"`
	Status              TransactionStatus `json:"status" gorm:"size:16;not null;index"`
	Administrative      bool              `json:"administrative"`
	GasPrice            decimal.Decimal   `json:"gas_price" gorm:"type:varchar(80)"`
	GasUsed             int64             `json:"gas_used"`
	BlockHash           string            `json:"block_hash" gorm:"size:66"`
	BlockNumber         int64             `json:"block_number"`
	BlockTimestamp      int64             `json:"block_timestamp"`
	SentTimestamp       int64             `json:"sent_timestamp" gorm:"index"` // 毫秒
	SendingAttemptCount int               `json:"sending_attempt_count" gorm:"not null;default:0"`
	Label               string            `json:"label" gorm:"size:32"`
	Issuer              string            `json:"issuer" gorm:"size:128"`
	Error               string            `json:"error" gorm:"type:text"`
	ReplacedBy          string            `json:"replaced_by" gorm:"size:66"` // 被加速替换后的新交易哈希
}

// GetHash 获取交易哈希，未签名时返回空串
func (t *TransactionModel) GetHash() string {
	if t.Hash == nil {
		return ""
	}
	return *t.Hash
}

// IsReplaced 是否已被替换且尚未终结
func (t *TransactionModel) IsReplaced() bool {
	return t.Status == TransactionStatusReplaced
}

// TableName 自定义表名
func (TransactionModel) TableName() string {
	return "wallet_transaction"
}
