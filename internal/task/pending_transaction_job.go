package task

import (
	"context"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/logic"
	"github.com/go-co-op/gocron/v2"
)

// PendingTransactionChecker 检查卡住的交易
type PendingTransactionChecker interface {
	CheckPendingTransactions(ctx context.Context, maxPendingAge time.Duration) (*logic.SweepResult, error)
}

// PendingTransactionJob 重发或终结超时未确认的交易
type PendingTransactionJob struct {
	checker       PendingTransactionChecker
	interval      time.Duration
	maxPendingAge time.Duration
}

// NewPendingTransactionJob 创建待确认交易检查任务
func NewPendingTransactionJob(checker PendingTransactionChecker, intervalSeconds int, maxPendingAge time.Duration) *PendingTransactionJob {
	return &PendingTransactionJob{
		checker:       checker,
		interval:      interval(intervalSeconds, 5*time.Minute),
		maxPendingAge: maxPendingAge,
	}
}

// GetName 获取任务名称
func (j *PendingTransactionJob) GetName() string {
	return "pending_transaction_checker"
}

// GetSchedule 获取调度配置
func (j *PendingTransactionJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *PendingTransactionJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	result, err := j.checker.CheckPendingTransactions(ctx, j.maxPendingAge)
	if err != nil {
		logger.Error("Failed to check pending transactions: %v", err)
		return
	}
	if result.Checked == 0 && result.Abandoned == 0 && result.Recovered == 0 {
		return
	}
	logger.Info("Pending transaction check completed: checked=%d resent=%d confirmed=%d failed=%d abandoned=%d recovered=%d skipped=%d errors=%d",
		result.Checked, result.Resent, result.Confirmed, result.Failed, result.Abandoned, result.Recovered, result.Skipped, result.Errors)
}
