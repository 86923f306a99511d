package task

import (
	"context"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/logic"
	"github.com/go-co-op/gocron/v2"
)

// RewardStatusVerifier 确认奖励发放结果
type RewardStatusVerifier interface {
	VerifyRewardStatus(ctx context.Context) (*logic.VerifyResult, error)
}

// RewardStatusJob 检查发放中的奖励周期是否已全部完成
type RewardStatusJob struct {
	verifier RewardStatusVerifier
	interval time.Duration
}

// NewRewardStatusJob 创建奖励状态检查任务
func NewRewardStatusJob(verifier RewardStatusVerifier, intervalSeconds int) *RewardStatusJob {
	return &RewardStatusJob{
		verifier: verifier,
		interval: interval(intervalSeconds, 5*time.Minute),
	}
}

// GetName 获取任务名称
func (j *RewardStatusJob) GetName() string {
	return "reward_status_verifier"
}

// GetSchedule 获取调度配置
func (j *RewardStatusJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *RewardStatusJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	result, err := j.verifier.VerifyRewardStatus(ctx)
	if err != nil {
		logger.Error("Failed to verify reward status: %v", err)
		return
	}
	if result.Checked == 0 {
		return
	}
	logger.Info("Reward status verified: checked=%d succeeded=%d partial=%d in_progress=%d skipped=%d",
		result.Checked, result.Succeeded, result.Partial, result.InProgress, result.Skipped)
}
