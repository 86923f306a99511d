package task

import (
	"context"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/reward"
	"github.com/go-co-op/gocron/v2"
)

// CurrentPeriodRefresher 刷新当前周期的预估奖励
type CurrentPeriodRefresher interface {
	RefreshCurrentPeriod(ctx context.Context) (*reward.Report, error)
}

// RewardPeriodJob 定期重算当前周期
type RewardPeriodJob struct {
	refresher CurrentPeriodRefresher
	interval  time.Duration
}

// NewRewardPeriodJob 创建当前周期刷新任务
func NewRewardPeriodJob(refresher CurrentPeriodRefresher, intervalSeconds int) *RewardPeriodJob {
	return &RewardPeriodJob{
		refresher: refresher,
		interval:  interval(intervalSeconds, time.Hour),
	}
}

// GetName 获取任务名称
func (j *RewardPeriodJob) GetName() string {
	return "reward_current_period_refresher"
}

// GetSchedule 获取调度配置
func (j *RewardPeriodJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *RewardPeriodJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	report, err := j.refresher.RefreshCurrentPeriod(ctx)
	if err != nil {
		logger.Error("Failed to refresh current reward period: %v", err)
		return
	}
	if report == nil || report.Period.Start == 0 {
		logger.Debug("No reward settings, skipping current period refresh")
		return
	}
	logger.Info("Current reward period %d refreshed: %d rewards, %d valid, budget %s",
		report.PeriodId, len(report.Rewards), report.ValidRewardCount, report.BudgetAmount.String())
}
