package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blues/wallet-reward/internal/logic"
	"github.com/blues/wallet-reward/internal/reward"
	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	calls  atomic.Int32
	maxAge time.Duration
	err    error
}

func (s *stubChecker) CheckPendingTransactions(_ context.Context, maxPendingAge time.Duration) (*logic.SweepResult, error) {
	s.calls.Add(1)
	s.maxAge = maxPendingAge
	if s.err != nil {
		return nil, s.err
	}
	return &logic.SweepResult{Checked: 2, Resent: 1, Confirmed: 1}, nil
}

type stubRewards struct {
	verified  atomic.Int32
	refreshed atomic.Int32
	reminded  atomic.Int32
}

func (s *stubRewards) VerifyRewardStatus(context.Context) (*logic.VerifyResult, error) {
	s.verified.Add(1)
	return &logic.VerifyResult{Checked: 1, Succeeded: 1}, nil
}

func (s *stubRewards) RefreshCurrentPeriod(context.Context) (*reward.Report, error) {
	s.refreshed.Add(1)
	return &reward.Report{}, nil
}

func (s *stubRewards) RemindUnsentPeriods(context.Context) (int, error) {
	s.reminded.Add(1)
	return 0, errors.New("db down")
}

type stubGas struct {
	calls atomic.Int32
}

func (s *stubGas) UpdateGasPrice(context.Context) error {
	s.calls.Add(1)
	return nil
}

type panicJob struct {
	runs atomic.Int32
}

func (j *panicJob) GetName() string { return "panic_job" }

func (j *panicJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(20 * time.Millisecond)
}

func (j *panicJob) Execute() {
	j.runs.Add(1)
	panic("boom")
}

func TestJobsCallTheirLogic(t *testing.T) {
	checker := &stubChecker{}
	rewards := &stubRewards{}
	gas := &stubGas{}

	NewPendingTransactionJob(checker, 300, 10*time.Minute).Execute()
	NewRewardStatusJob(rewards, 300).Execute()
	NewRewardPeriodJob(rewards, 3600).Execute()
	NewRewardReminderJob(rewards, 86400).Execute()
	NewGasPriceJob(gas, 60).Execute()

	assert.Equal(t, int32(1), checker.calls.Load())
	assert.Equal(t, 10*time.Minute, checker.maxAge)
	assert.Equal(t, int32(1), rewards.verified.Load())
	assert.Equal(t, int32(1), rewards.refreshed.Load())
	assert.Equal(t, int32(1), rewards.reminded.Load())
	assert.Equal(t, int32(1), gas.calls.Load())

	// 出错只记录日志
	checker.err = errors.New("rpc down")
	NewPendingTransactionJob(checker, 300, time.Minute).Execute()
	assert.Equal(t, int32(2), checker.calls.Load())
}

func TestIntervalFallback(t *testing.T) {
	assert.Equal(t, 5*time.Minute, NewPendingTransactionJob(&stubChecker{}, 0, time.Minute).interval)
	assert.Equal(t, time.Hour, NewRewardPeriodJob(&stubRewards{}, -1).interval)
	assert.Equal(t, 24*time.Hour, NewRewardReminderJob(&stubRewards{}, 0).interval)
	assert.Equal(t, 90*time.Second, NewGasPriceJob(&stubGas{}, 90).interval)
}

func TestManagerRegistersJobs(t *testing.T) {
	rewards := &stubRewards{}
	m, err := NewManager(
		NewPendingTransactionJob(&stubChecker{}, 300, time.Minute),
		NewRewardStatusJob(rewards, 300),
		NewRewardPeriodJob(rewards, 3600),
		NewRewardReminderJob(rewards, 86400),
		NewGasPriceJob(&stubGas{}, 60),
	)
	require.NoError(t, err)
	require.NoError(t, m.RegisterJobs())
	defer m.Stop()

	assert.ElementsMatch(t, []string{
		"pending_transaction_checker",
		"reward_status_verifier",
		"reward_current_period_refresher",
		"reward_send_reminder",
		"gas_price_updater",
	}, m.JobNames())
}

func TestManagerSurvivesPanickingJob(t *testing.T) {
	job := &panicJob{}
	m, err := NewManager(job)
	require.NoError(t, err)
	require.NoError(t, m.RegisterJobs())
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
}
