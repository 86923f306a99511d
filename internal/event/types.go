package event

import (
	"context"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/reward"
)

// Type 事件类型
type Type string

const (
	TypeRewardPeriodSucceeded     Type = "reward.period.succeeded"
	TypeRewardPeriodNotSent       Type = "reward.period.not_sent"
	TypeTransactionSentExternally Type = "transaction.sent_externally"
	TypeTransactionMined          Type = "transaction.mined"
	TypeTransactionReplaced       Type = "transaction.replaced"
)

// AllTypes 全部事件类型
func AllTypes() []Type {
	return []Type{
		TypeRewardPeriodSucceeded,
		TypeRewardPeriodNotSent,
		TypeTransactionSentExternally,
		TypeTransactionMined,
		TypeTransactionReplaced,
	}
}

// RewardPeriodSucceeded 周期奖励全部发放成功
type RewardPeriodSucceeded struct {
	Report *reward.Report
}

// RewardPeriodNotSent 周期已结束但尚未发放
type RewardPeriodNotSent struct {
	PeriodId   int64
	PeriodType string
	StartTime  int64
	EndTime    int64
}

// TransactionSentExternally 链上发现非本系统发出的交易
type TransactionSentExternally struct {
	Transaction model.TransactionModel
}

// TransactionMined 本地交易已打包
type TransactionMined struct {
	Transaction model.TransactionModel
}

// TransactionReplaced 交易被加速替换
type TransactionReplaced struct {
	OldHash string
	NewHash string
}

// LogListener 记录所有事件
func LogListener() Listener {
	return ListenerFunc(func(ctx context.Context, e Event) error {
		switch p := e.Payload.(type) {
		case RewardPeriodSucceeded:
			logger.Info("Event %s: period %d sent %s tokens to %d wallets",
				e.Type, p.Report.PeriodId, p.Report.SentTokens.String(), p.Report.SuccessCount)
		case RewardPeriodNotSent:
			logger.Info("Event %s: period %d (%s) ended at %d and is not sent yet",
				e.Type, p.PeriodId, p.PeriodType, p.EndTime)
		case TransactionSentExternally:
			logger.Info("Event %s: %s from %s to %s", e.Type, p.Transaction.GetHash(), p.Transaction.FromAddress, p.Transaction.ToAddress)
		case TransactionMined:
			logger.Info("Event %s: %s status %s", e.Type, p.Transaction.GetHash(), p.Transaction.Status)
		case TransactionReplaced:
			logger.Info("Event %s: %s replaced by %s", e.Type, p.OldHash, p.NewHash)
		default:
			logger.Info("Event %s", e.Type)
		}
		return nil
	})
}
