package task

import (
	"context"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// GasPriceUpdater 刷新缓存的 gas 价格
type GasPriceUpdater interface {
	UpdateGasPrice(ctx context.Context) error
}

// GasPriceJob 定期从链上获取 gas 价格
type GasPriceJob struct {
	updater  GasPriceUpdater
	interval time.Duration
}

// NewGasPriceJob 创建 gas 价格刷新任务
func NewGasPriceJob(updater GasPriceUpdater, intervalSeconds int) *GasPriceJob {
	return &GasPriceJob{
		updater:  updater,
		interval: interval(intervalSeconds, time.Minute),
	}
}

// GetName 获取任务名称
func (j *GasPriceJob) GetName() string {
	return "gas_price_updater"
}

// GetSchedule 获取调度配置
func (j *GasPriceJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *GasPriceJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	if err := j.updater.UpdateGasPrice(ctx); err != nil {
		logger.Warn("Failed to update gas price: %v", err)
	}
}
