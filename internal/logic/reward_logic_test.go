package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blues/wallet-reward/internal/database/dbtest"
	"github.com/blues/wallet-reward/internal/event"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/repository"
	"github.com/blues/wallet-reward/internal/reward"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAdmin = "0x00000000000000000000000000000000000000ad"

type pointsPlugin struct {
	id     string
	mu     sync.Mutex
	points map[int64]float64
	err    error
	panics bool
}

func (p *pointsPlugin) ID() string      { return p.id }
func (p *pointsPlugin) IsEnabled() bool { return true }

func (p *pointsPlugin) GetEarnedPoints(context.Context, []int64, int64, int64) (map[int64]float64, error) {
	if p.panics {
		panic("point source unavailable")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[int64]float64, len(p.points))
	for k, v := range p.points {
		out[k] = v
	}
	return out, p.err
}

func (p *pointsPlugin) set(points map[int64]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = points
}

// fakeSubmitter 直接写入交易记录，不经过链
type fakeSubmitter struct {
	mu       sync.Mutex
	repo     *repository.TransactionRepository
	nonce    int64
	requests []TransferRequest
	fail     map[string]bool
}

func (s *fakeSubmitter) Submit(ctx context.Context, req TransferRequest) (*model.TransactionModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	hash := fmt.Sprintf("0x%064x", s.nonce+1)
	tx := &model.TransactionModel{
		Hash:            &hash,
		FromAddress:     req.From,
		ToAddress:       req.To,
		ContractAddress: req.ContractAddress,
		ContractAmount:  req.TokenAmount,
		Nonce:           s.nonce,
		Status:          model.TransactionStatusPending,
		Label:           req.Label,
		Issuer:          req.Issuer,
	}
	s.nonce++

	if s.fail[req.To] {
		tx.Status = model.TransactionStatusFailed
		if err := s.repo.Create(ctx, tx); err != nil {
			return nil, err
		}
		return tx, &SubmissionError{Kind: SubmissionRejected, Hash: hash, Err: errors.New("insufficient funds")}
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *fakeSubmitter) TrackReplacement(ctx context.Context, oldHash, newHash string) (*model.TransactionModel, error) {
	old, err := s.repo.GetByHash(ctx, oldHash)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, ErrTransactionNotFound
	}
	if _, err := s.repo.MarkReplaced(ctx, old.Id, newHash); err != nil {
		return nil, err
	}
	tx := &model.TransactionModel{
		Hash:           &newHash,
		FromAddress:    old.FromAddress,
		ToAddress:      old.ToAddress,
		ContractAmount: old.ContractAmount,
		Nonce:          old.Nonce,
		Status:         model.TransactionStatusPending,
		Label:          old.Label,
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *fakeSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type rewardFixture struct {
	db        *gorm.DB
	logic     *RewardLogic
	plugin    *pointsPlugin
	submitter *fakeSubmitter
	recorder  *eventRecorder
	settings  *reward.Settings
	now       time.Time
}

func walletAddress(identityId int64) string {
	return fmt.Sprintf("0x%040x", identityId)
}

// newRewardFixture 准备四个钱包，4 号已停用
func newRewardFixture(t *testing.T, settings *reward.Settings) *rewardFixture {
	t.Helper()

	db := dbtest.New(t)
	for id := int64(1); id <= 4; id++ {
		require.NoError(t, db.Create(&model.WalletModel{
			IdentityId: id,
			Address:    walletAddress(id),
			Enabled:    id != 4,
		}).Error)
	}

	recorder := &eventRecorder{}
	dispatcher := event.NewDispatcher()
	for _, typ := range event.AllTypes() {
		dispatcher.Register(typ, recorder)
	}

	plugin := &pointsPlugin{id: "activity", points: map[int64]float64{1: 10, 2: 50, 3: 40, 4: 30}}
	submitter := &fakeSubmitter{repo: repository.NewTransactionRepository(db), fail: map[string]bool{}}

	f := &rewardFixture{
		db:        db,
		plugin:    plugin,
		submitter: submitter,
		recorder:  recorder,
		settings:  settings,
		// 2024-03-15，处于 2024 年 3 月内
		now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	var provider reward.SettingsProvider = reward.NewStaticSettingsProvider(settings)
	f.logic = NewRewardLogic(db, repository.NewWalletRepository(db), provider, reward.NewRegistry(plugin), submitter, dispatcher, RewardOptions{
		AdminAddress:  testAdmin,
		TokenAddress:  testToken,
		TokenDecimals: 6,
	})
	f.logic.now = func() time.Time { return f.now }
	f.logic.RegisterListeners(dispatcher)
	return f
}

func perMemberSettings() *reward.Settings {
	return &reward.Settings{
		PeriodType: reward.PeriodMonth,
		TimeZone:   "UTC",
		Budget:     reward.Budget{Type: reward.BudgetFixedPerMember, Amount: decimal.NewFromInt(200)},
	}
}

// lastMonth 上个月内的任意时间
func (f *rewardFixture) lastMonth() time.Time {
	return time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
}

func (f *rewardFixture) setAllStatus(t *testing.T, status model.TransactionStatus) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.TransactionModel{}).Where("1 = 1").Update("status", status).Error)
}

func TestComputeRewardsFixedPerMember(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	report, err := f.logic.ComputeRewards(ctx, f.lastMonth())
	require.NoError(t, err)

	share := decimal.NewFromInt(200).Div(decimal.NewFromInt(3))
	assert.Equal(t, 3, report.ValidRewardCount)
	for _, id := range []int64{1, 2, 3} {
		w := report.Reward(id)
		require.NotNil(t, w, "identity %d", id)
		assert.True(t, w.Amount.Equal(share), "identity %d got %s", id, w.Amount)
		assert.Equal(t, walletAddress(id), w.WalletAddress)
	}

	// 停用钱包不参与分配
	disabled := report.Reward(4)
	require.NotNil(t, disabled)
	assert.False(t, disabled.IsValid())
	assert.True(t, disabled.Amount.IsZero())

	assert.Equal(t, int64(1706745600), report.Period.Start)
	assert.Equal(t, int64(1709251200), report.Period.End)
	assert.Equal(t, model.RewardPeriodStatusNotStarted, report.Status)
}

func TestComputeRewardsIsDeterministic(t *testing.T) {
	settings := perMemberSettings()
	settings.Budget = reward.Budget{Type: reward.BudgetFixed, Amount: decimal.NewFromInt(1000)}
	f := newRewardFixture(t, settings)
	ctx := context.Background()

	first, err := f.logic.ComputeRewards(ctx, f.lastMonth())
	require.NoError(t, err)
	second, err := f.logic.ComputeRewards(ctx, f.lastMonth())
	require.NoError(t, err)

	require.Len(t, second.Rewards, len(first.Rewards))
	for i := range first.Rewards {
		assert.Equal(t, first.Rewards[i].IdentityId, second.Rewards[i].IdentityId)
		assert.True(t, first.Rewards[i].Amount.Equal(second.Rewards[i].Amount))
	}
	assert.True(t, first.Reward(2).Amount.Equal(decimal.NewFromInt(500)))
}

func TestComputeRewardsThreshold(t *testing.T) {
	settings := perMemberSettings()
	settings.Threshold = 20
	f := newRewardFixture(t, settings)

	report, err := f.logic.ComputeRewards(context.Background(), f.lastMonth())
	require.NoError(t, err)
	assert.Equal(t, 2, report.ValidRewardCount)
	assert.False(t, report.Reward(1).IsValid())
	assert.True(t, report.Reward(2).Amount.Equal(decimal.NewFromInt(100)))
}

func TestComputeRewardsWithoutSettings(t *testing.T) {
	f := newRewardFixture(t, nil)
	ctx := context.Background()

	report, err := f.logic.ComputeRewards(ctx, f.lastMonth())
	require.NoError(t, err)
	assert.Empty(t, report.Rewards)

	result, err := f.logic.SendRewards(ctx, f.lastMonth(), "admin")
	require.NoError(t, err)
	assert.Zero(t, result.Sent)
	assert.Zero(t, f.submitter.count())
}

func TestComputeRewardsPluginFailureCountsAsZero(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	f.logic.registry.Register(&pointsPlugin{id: "broken", err: errors.New("timeout")})
	f.logic.registry.Register(&pointsPlugin{id: "panicky", panics: true})
	f.logic.registry.Register(&pointsPlugin{id: "referral", points: map[int64]float64{1: 5}})

	report, err := f.logic.ComputeRewards(context.Background(), f.lastMonth())
	require.NoError(t, err)
	assert.Equal(t, 3, report.ValidRewardCount)
	assert.Equal(t, float64(15), report.Reward(1).Points)
	assert.Equal(t, float64(50), report.Reward(2).Points)
}

func TestSendRewardsRequiresEndedPeriodAndAdmin(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	_, err := f.logic.SendRewards(ctx, f.now, "admin")
	assert.ErrorIs(t, err, ErrPeriodNotEnded)

	f.logic.options.AdminAddress = ""
	_, err = f.logic.SendRewards(ctx, f.lastMonth(), "admin")
	assert.ErrorIs(t, err, ErrNoAdminWallet)
	assert.Zero(t, f.submitter.count())
}

func TestSendRewardsIsIdempotent(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	result, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 1, result.Ineligible)
	assert.Zero(t, result.Failed)

	req := f.submitter.requests[0]
	assert.Equal(t, testAdmin, req.From)
	assert.Equal(t, testToken, req.ContractAddress)
	assert.True(t, req.Administrative)
	assert.Equal(t, "operator", req.Issuer)
	assert.True(t, req.TokenAmount.Equal(decimal.NewFromInt(66666666)), "got %s", req.TokenAmount)

	period, err := repository.NewRewardRepository(f.db).GetPeriodById(ctx, result.PeriodId)
	require.NoError(t, err)
	assert.Equal(t, model.RewardPeriodStatusInProgress, period.Status)

	again, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	assert.Zero(t, again.Sent)
	assert.Equal(t, 3, again.Skipped)
	assert.Equal(t, 3, f.submitter.count())

	// 已成功的交易不会再次发送
	f.setAllStatus(t, model.TransactionStatusSucceeded)
	again, err = f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	assert.Zero(t, again.Sent)
	assert.Equal(t, 3, f.submitter.count())
}

func TestSendRewardsRetriesFailedPayouts(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	f.submitter.fail[walletAddress(2)] = true
	result, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors[2], "insufficient funds")

	report, err := f.logic.ComputeRewards(ctx, f.lastMonth())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, 2, report.PendingCount)

	delete(f.submitter.fail, walletAddress(2))
	retry, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Sent)
	assert.Equal(t, 2, retry.Skipped)
	assert.Equal(t, 4, f.submitter.count())
	assert.Equal(t, walletAddress(2), f.submitter.requests[3].To)
}

func TestVerifyRewardStatusSucceedsAndReplays(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	_, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)

	inProgress, err := f.logic.GetRewardPeriodsInProgress(ctx)
	require.NoError(t, err)
	assert.Len(t, inProgress, 1)
	sending, err := f.logic.IsRewardSendingInProgress(ctx)
	require.NoError(t, err)
	assert.True(t, sending)

	result, err := f.logic.VerifyRewardStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.InProgress)

	f.setAllStatus(t, model.TransactionStatusSucceeded)
	result, err = f.logic.VerifyRewardStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	succeeded := f.recorder.ofType(event.TypeRewardPeriodSucceeded)
	require.Len(t, succeeded, 1)
	report := succeeded[0].Payload.(event.RewardPeriodSucceeded).Report
	assert.Equal(t, model.RewardPeriodStatusSuccess, report.Status)
	assert.Equal(t, 3, report.SuccessCount)
	assert.True(t, report.IsCompletelyProceeded())

	sending, err = f.logic.IsRewardSendingInProgress(ctx)
	require.NoError(t, err)
	assert.False(t, sending)

	// 成功周期只读回放，不受积分变化影响
	f.plugin.set(map[int64]float64{1: 1000})
	replay, err := f.logic.ComputeRewards(ctx, f.lastMonth())
	require.NoError(t, err)
	assert.Equal(t, model.RewardPeriodStatusSuccess, replay.Status)
	assert.Equal(t, 3, replay.SuccessCount)
	assert.Equal(t, float64(50), replay.Reward(2).Points)
}

func TestVerifyRewardStatusPartial(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		f.submitter.fail[walletAddress(id)] = true
	}
	result, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Failed)

	verify, err := f.logic.VerifyRewardStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, verify.Partial)

	period, err := repository.NewRewardRepository(f.db).GetPeriodById(ctx, result.PeriodId)
	require.NoError(t, err)
	assert.Equal(t, model.RewardPeriodStatusPartial, period.Status)
	assert.Empty(t, f.recorder.ofType(event.TypeRewardPeriodSucceeded))
}

func TestVerifyRewardStatusSkipsWhileSending(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())

	f.logic.sending.Add(1)
	defer f.logic.sending.Add(-1)

	result, err := f.logic.VerifyRewardStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Checked)
}

func TestReplaceRewardTransactionsOnEvent(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	result, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)

	report, err := f.logic.GetPeriodReport(ctx, result.PeriodId)
	require.NoError(t, err)
	old := report.Reward(1)
	require.NotNil(t, old)

	newHash := fmt.Sprintf("0x%064x", 999)
	replacement := &model.TransactionModel{
		Hash:        &newHash,
		FromAddress: testAdmin,
		ToAddress:   walletAddress(1),
		Status:      model.TransactionStatusPending,
	}
	require.NoError(t, repository.NewTransactionRepository(f.db).Create(ctx, replacement))

	failed := f.logic.dispatcher.Publish(ctx, event.TypeTransactionReplaced, event.TransactionReplaced{
		OldHash: old.TransactionHash,
		NewHash: newHash,
	})
	assert.Zero(t, failed)

	report, err = f.logic.GetPeriodReport(ctx, result.PeriodId)
	require.NoError(t, err)
	assert.Equal(t, newHash, report.Reward(1).TransactionHash)
	assert.Equal(t, replacement.Id, *report.Reward(1).TransactionId)

	_, err = f.logic.ReplaceRewardTransactions(ctx, fmt.Sprintf("0x%064x", 12345), newHash)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestReplaceRewardTransactionsTracksUnknownHash(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	result, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	report, err := f.logic.GetPeriodReport(ctx, result.PeriodId)
	require.NoError(t, err)
	old := report.Reward(2)
	require.NotNil(t, old)

	// 运营在系统外加速，新哈希本地没有记录
	newHash := fmt.Sprintf("0x%064x", 4242)
	updated, err := f.logic.ReplaceRewardTransactions(ctx, strings.ToUpper(old.TransactionHash[2:]), newHash)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	report, err = f.logic.GetPeriodReport(ctx, result.PeriodId)
	require.NoError(t, err)
	assert.Equal(t, newHash, report.Reward(2).TransactionHash)
	assert.Equal(t, model.TransactionStatusPending, report.Reward(2).TransactionStatus)
	assert.True(t, report.Reward(2).IsSent())

	// 已关联的奖励不会重复发放
	before := f.submitter.count()
	again, err := f.logic.SendRewards(ctx, f.lastMonth(), "operator")
	require.NoError(t, err)
	assert.Zero(t, again.Sent)
	assert.Equal(t, before, f.submitter.count())
}

func TestRefreshCurrentPeriodAndReminder(t *testing.T) {
	f := newRewardFixture(t, perMemberSettings())
	ctx := context.Background()

	report, err := f.logic.RefreshCurrentPeriod(ctx)
	require.NoError(t, err)
	require.NotZero(t, report.PeriodId)
	assert.Equal(t, 3, report.ValidRewardCount)

	stored, err := f.logic.GetPeriodReport(ctx, report.PeriodId)
	require.NoError(t, err)
	assert.Equal(t, model.RewardPeriodStatusNotStarted, stored.Status)
	assert.Len(t, stored.Rewards, 4)

	reminded, err := f.logic.RemindUnsentPeriods(ctx)
	require.NoError(t, err)
	assert.Zero(t, reminded)

	f.now = f.now.AddDate(0, 1, 0)
	reminded, err = f.logic.RemindUnsentPeriods(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reminded)

	notSent := f.recorder.ofType(event.TypeRewardPeriodNotSent)
	require.Len(t, notSent, 1)
	assert.Equal(t, report.PeriodId, notSent[0].Payload.(event.RewardPeriodNotSent).PeriodId)

	// 发放后不再提醒
	_, err = f.logic.SendRewards(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "operator")
	require.NoError(t, err)
	reminded, err = f.logic.RemindUnsentPeriods(ctx)
	require.NoError(t, err)
	assert.Zero(t, reminded)

	history, err := f.logic.ListRewards(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TransactionStatusPending, history[0].TransactionStatus)
}
