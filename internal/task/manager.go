package task

import (
	"fmt"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/metrics"
	"github.com/go-co-op/gocron/v2"
)

// Job 定时任务
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

// Manager 任务管理器
type Manager struct {
	scheduler gocron.Scheduler
	jobs      []Job
}

// NewManager 创建新的任务管理器
func NewManager(jobs ...Job) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Manager{
		scheduler: s,
		jobs:      jobs,
	}, nil
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() error {
	for _, job := range m.jobs {
		if err := m.register(job); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(instrument(job)),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.GetName(), err)
	}
	logger.Info("Registered job %s", job.GetName())
	return nil
}

// instrument 记录任务执行次数和耗时
func instrument(job Job) func() {
	name := job.GetName()
	return func() {
		start := time.Now()
		defer func() {
			metrics.JobRuns.WithLabelValues(name).Inc()
			metrics.JobLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if r := recover(); r != nil {
				logger.Error("Job %s panicked: %v", name, r)
			}
		}()
		job.Execute()
	}
}

// Start 启动调度器
func (m *Manager) Start() {
	m.scheduler.Start()
	logger.Info("Task manager started successfully")
}

// JobNames 已注册的任务名称
func (m *Manager) JobNames() []string {
	jobs := m.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}

func interval(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
