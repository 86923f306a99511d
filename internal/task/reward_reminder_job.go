package task

import (
	"context"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// UnsentPeriodReminder 提醒已结束但未发放的周期
type UnsentPeriodReminder interface {
	RemindUnsentPeriods(ctx context.Context) (int, error)
}

// RewardReminderJob 提醒运营发放已结束周期的奖励
type RewardReminderJob struct {
	reminder UnsentPeriodReminder
	interval time.Duration
}

// NewRewardReminderJob 创建奖励发放提醒任务
func NewRewardReminderJob(reminder UnsentPeriodReminder, intervalSeconds int) *RewardReminderJob {
	return &RewardReminderJob{
		reminder: reminder,
		interval: interval(intervalSeconds, 24*time.Hour),
	}
}

// GetName 获取任务名称
func (j *RewardReminderJob) GetName() string {
	return "reward_send_reminder"
}

// GetSchedule 获取调度配置
func (j *RewardReminderJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *RewardReminderJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := j.reminder.RemindUnsentPeriods(ctx)
	if err != nil {
		logger.Error("Failed to check unsent reward periods: %v", err)
		return
	}
	logger.Debug("Reward reminder found %d unsent periods", count)
}
