package logic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/wallet-reward/internal/chain"
	"github.com/blues/wallet-reward/internal/event"
	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/metrics"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/repository"
	"github.com/blues/wallet-reward/internal/reward"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const rewardLabel = "reward"

// TransactionSubmitter 提交转账交易并跟踪外部替换
type TransactionSubmitter interface {
	Submit(ctx context.Context, req TransferRequest) (*model.TransactionModel, error)
	TrackReplacement(ctx context.Context, oldHash, newHash string) (*model.TransactionModel, error)
}

// WalletProvider 查询用户钱包
type WalletProvider interface {
	ListIdentityIds(ctx context.Context) ([]int64, error)
	FindByIdentityIds(ctx context.Context, identityIds []int64) (map[int64]*model.WalletModel, error)
}

// RewardOptions 奖励发放参数
type RewardOptions struct {
	AdminAddress  string // 发放奖励的钱包
	TokenAddress  string
	TokenDecimals int32
	PluginTimeout time.Duration
}

// SendResult 一次发放的结果
type SendResult struct {
	PeriodId   int64            `json:"period_id"`
	Sent       int              `json:"sent"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Ineligible int              `json:"ineligible"`
	Errors     map[int64]string `json:"errors,omitempty"` // identityId -> 错误信息
}

// VerifyResult 一轮周期状态检查的结果
type VerifyResult struct {
	Checked    int `json:"checked"`
	Succeeded  int `json:"succeeded"`
	Partial    int `json:"partial"`
	InProgress int `json:"in_progress"`
	Skipped    int `json:"skipped"`
}

// RewardLogic 周期奖励计算与发放
type RewardLogic struct {
	rewards     *repository.RewardRepository
	txs         *repository.TransactionRepository
	wallets     WalletProvider
	settings    reward.SettingsProvider
	registry    *reward.Registry
	submitter   TransactionSubmitter
	dispatcher  *event.Dispatcher
	options     RewardOptions
	periodLocks *keyedMutex
	sending     atomic.Int32
	now         func() time.Time
}

// NewRewardLogic 创建奖励逻辑
func NewRewardLogic(
	db *gorm.DB,
	wallets WalletProvider,
	settings reward.SettingsProvider,
	registry *reward.Registry,
	submitter TransactionSubmitter,
	dispatcher *event.Dispatcher,
	options RewardOptions,
) *RewardLogic {
	if options.PluginTimeout <= 0 {
		options.PluginTimeout = 30 * time.Second
	}
	if options.AdminAddress != "" {
		options.AdminAddress = chain.NormalizeAddress(options.AdminAddress)
	}
	if options.TokenAddress != "" {
		options.TokenAddress = chain.NormalizeAddress(options.TokenAddress)
	}

	return &RewardLogic{
		rewards:     repository.NewRewardRepository(db),
		txs:         repository.NewTransactionRepository(db),
		wallets:     wallets,
		settings:    settings,
		registry:    registry,
		submitter:   submitter,
		dispatcher:  dispatcher,
		options:     options,
		periodLocks: newKeyedMutex(),
		now:         time.Now,
	}
}

// RegisterListeners 订阅交易替换事件，保持奖励与交易的关联
func (l *RewardLogic) RegisterListeners(d *event.Dispatcher) {
	d.Register(event.TypeTransactionReplaced, event.ListenerFunc(func(ctx context.Context, e event.Event) error {
		p, ok := e.Payload.(event.TransactionReplaced)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		_, err := l.ReplaceRewardTransactions(ctx, p.OldHash, p.NewHash)
		return err
	}))
}

// loadSettings 获取奖励配置，未配置或配置无效时返回 nil
func (l *RewardLogic) loadSettings(ctx context.Context) *reward.Settings {
	settings, err := l.settings.GetSettings(ctx)
	if err != nil {
		logger.Error("Failed to load reward settings: %v", err)
		return nil
	}
	if settings == nil {
		logger.Debug("Reward settings not configured")
		return nil
	}
	if err := settings.Validate(); err != nil {
		logger.Warn("Invalid reward settings: %v", err)
		return nil
	}
	return settings
}

// ComputeRewards 计算 anchor 所在周期的奖励报告，已成功的周期直接返回历史报告
func (l *RewardLogic) ComputeRewards(ctx context.Context, anchor time.Time) (*reward.Report, error) {
	settings := l.loadSettings(ctx)
	if settings == nil {
		return &reward.Report{}, nil
	}

	period, err := reward.ResolvePeriod(settings.PeriodType, anchor, settings.TimeZone)
	if err != nil {
		logger.Warn("Failed to resolve reward period: %v", err)
		return &reward.Report{}, nil
	}
	return l.computeForPeriod(ctx, settings, period)
}

func (l *RewardLogic) computeForPeriod(ctx context.Context, settings *reward.Settings, period reward.Period) (*reward.Report, error) {
	stored, err := l.rewards.GetPeriod(ctx, string(period.Type), period.Start)
	if err != nil {
		return nil, fmt.Errorf("查询奖励周期失败: %w", err)
	}
	if stored != nil && stored.Status == model.RewardPeriodStatusSuccess {
		return l.storedReport(ctx, stored)
	}

	identityIds, err := l.wallets.ListIdentityIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	points := l.aggregatePoints(ctx, settings, identityIds, period)

	earned := make([]int64, 0, len(points))
	for id, p := range points {
		if p > 0 {
			earned = append(earned, id)
		}
	}
	sort.Slice(earned, func(i, j int) bool { return earned[i] < earned[j] })

	wallets, err := l.wallets.FindByIdentityIds(ctx, earned)
	if err != nil {
		return nil, fmt.Errorf("查询钱包失败: %w", err)
	}

	eligible := make(map[int64]float64, len(earned))
	for _, id := range earned {
		w := wallets[id]
		if w == nil || !w.IsEligible() || points[id] < settings.Threshold {
			continue
		}
		eligible[id] = points[id]
	}
	amounts := settings.Budget.Distribute(eligible)

	report := &reward.Report{
		Period:     period,
		Status:     model.RewardPeriodStatusNotStarted,
		BudgetType: settings.Budget.Type,
	}

	rewards := make(map[int64]*reward.WalletReward, len(earned))
	for _, id := range earned {
		w := &reward.WalletReward{
			IdentityId: id,
			Points:     points[id],
			Amount:     decimal.Zero,
		}
		if wallet := wallets[id]; wallet != nil {
			w.WalletAddress = wallet.Address
		}
		if amount, ok := amounts[id]; ok {
			w.Enabled = true
			w.Amount = amount
		}
		rewards[id] = w
	}

	if stored != nil {
		report.PeriodId = stored.Id
		report.Status = stored.Status
		if err := l.mergeStoredRewards(ctx, stored.Id, rewards); err != nil {
			return nil, err
		}
	}

	report.Rewards = sortedRewards(rewards)
	if budgetCap, ok := settings.Budget.Cap(); ok {
		report.BudgetAmount = budgetCap
	} else {
		report.BudgetAmount = decimal.Zero
		for _, w := range report.Rewards {
			if w.IsValid() {
				report.BudgetAmount = report.BudgetAmount.Add(w.Amount)
			}
		}
	}
	report.Summarize()
	return report, nil
}

// mergeStoredRewards 已发出交易的奖励保持发放时的金额
func (l *RewardLogic) mergeStoredRewards(ctx context.Context, periodId int64, rewards map[int64]*reward.WalletReward) error {
	storedRewards, txs, err := l.loadRewards(ctx, periodId)
	if err != nil {
		return err
	}

	for _, s := range storedRewards {
		if s.TransactionId == nil {
			if w, ok := rewards[s.IdentityId]; ok {
				w.Id = s.Id
			}
			continue
		}

		sw := toWalletReward(s, txs)
		w, ok := rewards[s.IdentityId]
		if !ok || sw.IsSent() {
			rewards[s.IdentityId] = &sw
			continue
		}
		// 交易失败，按本次计算结果重新发放
		w.Id = sw.Id
		w.TransactionId = sw.TransactionId
		w.TransactionHash = sw.TransactionHash
		w.TransactionStatus = sw.TransactionStatus
	}
	return nil
}

func (l *RewardLogic) aggregatePoints(ctx context.Context, settings *reward.Settings, identityIds []int64, period reward.Period) map[int64]float64 {
	points := make(map[int64]float64)
	if len(identityIds) == 0 {
		return points
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, p := range l.registry.Enabled(settings.EnabledPlugins) {
		p := p
		g.Go(func() error {
			earned, err := l.callPlugin(ctx, p, identityIds, period)
			if err != nil {
				// 单个插件失败按零积分处理
				metrics.RewardPluginErrors.WithLabelValues(p.ID()).Inc()
				logger.Warn("Reward plugin %s failed for period %s: %v", p.ID(), period.Key(), err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for id, v := range earned {
				points[id] += v
			}
			return nil
		})
	}
	_ = g.Wait()
	return points
}

func (l *RewardLogic) callPlugin(ctx context.Context, p reward.Plugin, identityIds []int64, period reward.Period) (earned map[int64]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, l.options.PluginTimeout)
	defer cancel()
	return p.GetEarnedPoints(callCtx, identityIds, period.Start, period.End)
}

// SendRewards 发放 anchor 所在周期的奖励，可重复调用，已发出的奖励会被跳过
func (l *RewardLogic) SendRewards(ctx context.Context, anchor time.Time, actingUser string) (*SendResult, error) {
	result := &SendResult{Errors: make(map[int64]string)}
	settings := l.loadSettings(ctx)
	if settings == nil {
		return result, nil
	}

	period, err := reward.ResolvePeriod(settings.PeriodType, anchor, settings.TimeZone)
	if err != nil {
		logger.Warn("Failed to resolve reward period: %v", err)
		return result, nil
	}
	if !period.HasEnded(l.now()) {
		return nil, ErrPeriodNotEnded
	}
	if l.options.AdminAddress == "" {
		return nil, ErrNoAdminWallet
	}

	unlock := l.periodLocks.Lock(period.Key())
	defer unlock()
	l.sending.Add(1)
	defer l.sending.Add(-1)

	report, err := l.computeForPeriod(ctx, settings, period)
	if err != nil {
		return nil, err
	}
	if report.Status == model.RewardPeriodStatusSuccess {
		result.PeriodId = report.PeriodId
		result.Skipped = len(report.Rewards)
		logger.Info("Reward period %s already succeeded, nothing to send", period.Key())
		return result, nil
	}

	stored, err := l.rewards.EnsurePeriod(ctx, &model.RewardPeriodModel{
		PeriodType: string(period.Type),
		StartTime:  period.Start,
		EndTime:    period.End,
		TimeZone:   period.TimeZone,
		Status:     model.RewardPeriodStatusInProgress,
		BudgetType: string(settings.Budget.Type),
		Budget:     report.BudgetAmount,
		Threshold:  settings.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("保存奖励周期失败: %w", err)
	}
	if stored.Status != model.RewardPeriodStatusInProgress {
		if err := l.rewards.UpdatePeriodStatus(ctx, stored.Id, model.RewardPeriodStatusInProgress); err != nil {
			return nil, fmt.Errorf("更新奖励周期状态失败: %w", err)
		}
	}
	result.PeriodId = stored.Id

	for i := range report.Rewards {
		w := &report.Rewards[i]
		if w.IsSent() {
			result.Skipped++
			continue
		}

		row := &model.WalletRewardModel{
			PeriodId:      stored.Id,
			IdentityId:    w.IdentityId,
			WalletAddress: w.WalletAddress,
			Points:        w.Points,
			Amount:        w.Amount,
			Enabled:       w.Enabled,
		}
		if err := l.rewards.SaveReward(ctx, row); err != nil {
			result.Failed++
			result.Errors[w.IdentityId] = err.Error()
			logger.Error("Failed to save reward of identity %d in period %d: %v", w.IdentityId, stored.Id, err)
			continue
		}
		if !w.IsValid() {
			result.Ineligible++
			continue
		}

		if err := l.sendReward(ctx, row, actingUser); err != nil {
			result.Failed++
			result.Errors[w.IdentityId] = err.Error()
			metrics.RewardsSent.WithLabelValues("failed").Inc()
			logger.Warn("Failed to send reward of identity %d in period %d: %v", w.IdentityId, stored.Id, err)
			continue
		}
		result.Sent++
		metrics.RewardsSent.WithLabelValues("sent").Inc()
	}

	logger.Info("Reward period %s sending completed. sent=%d skipped=%d failed=%d ineligible=%d",
		period.Key(), result.Sent, result.Skipped, result.Failed, result.Ineligible)
	return result, nil
}

func (l *RewardLogic) sendReward(ctx context.Context, row *model.WalletRewardModel, actingUser string) error {
	tx, err := l.submitter.Submit(ctx, TransferRequest{
		From:            l.options.AdminAddress,
		To:              row.WalletAddress,
		ContractAddress: l.options.TokenAddress,
		TokenAmount:     row.Amount.Shift(l.options.TokenDecimals).Truncate(0),
		Administrative:  true,
		Label:           rewardLabel,
		Issuer:          actingUser,
	})
	if tx != nil && tx.Id != 0 {
		if linkErr := l.rewards.SetRewardTransaction(ctx, row.Id, tx.Id); linkErr != nil {
			logger.Error("Failed to link reward %d with transaction %d: %v", row.Id, tx.Id, linkErr)
			if err == nil {
				err = linkErr
			}
		}
	}
	return err
}

// IsRewardSendingInProgress 是否有正在发放或有未终结交易的周期
func (l *RewardLogic) IsRewardSendingInProgress(ctx context.Context) (bool, error) {
	if l.sending.Load() > 0 {
		return true, nil
	}
	periods, err := l.GetRewardPeriodsInProgress(ctx)
	if err != nil {
		return false, err
	}
	return len(periods) > 0, nil
}

// GetRewardPeriodsInProgress 查询奖励中仍有未终结交易的周期
func (l *RewardLogic) GetRewardPeriodsInProgress(ctx context.Context) ([]model.RewardPeriodModel, error) {
	periods, err := l.rewards.FindPeriodsByStatus(ctx, model.RewardPeriodStatusInProgress)
	if err != nil {
		return nil, err
	}

	inProgress := make([]model.RewardPeriodModel, 0, len(periods))
	for _, p := range periods {
		rows, txs, err := l.loadRewards(ctx, p.Id)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r.TransactionId == nil {
				continue
			}
			if tx := txs[*r.TransactionId]; tx != nil && !tx.Status.IsTerminal() {
				inProgress = append(inProgress, p)
				break
			}
		}
	}
	return inProgress, nil
}

// VerifyRewardStatus 检查发放中的周期，全部成功则标记为成功，无待处理交易且未发出任何代币则标记为部分完成
func (l *RewardLogic) VerifyRewardStatus(ctx context.Context) (*VerifyResult, error) {
	result := &VerifyResult{}
	if l.sending.Load() > 0 {
		logger.Info("Reward sending in progress, skip status verification")
		result.Skipped++
		return result, nil
	}

	periods, err := l.rewards.FindPeriodsByStatus(ctx, model.RewardPeriodStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("查询发放中的周期失败: %w", err)
	}

	for i := range periods {
		p := &periods[i]
		unlock, ok := l.periodLocks.TryLock(periodFromModel(p).Key())
		if !ok {
			result.Skipped++
			continue
		}
		l.verifyPeriod(ctx, p, result)
		unlock()
	}

	logger.Info("Reward status verification completed. checked=%d succeeded=%d partial=%d in_progress=%d skipped=%d",
		result.Checked, result.Succeeded, result.Partial, result.InProgress, result.Skipped)
	return result, nil
}

func (l *RewardLogic) verifyPeriod(ctx context.Context, p *model.RewardPeriodModel, result *VerifyResult) {
	report, err := l.storedReport(ctx, p)
	if err != nil {
		logger.Error("Failed to build report of period %d: %v", p.Id, err)
		result.Skipped++
		return
	}
	result.Checked++

	switch {
	case report.IsCompletelyProceeded():
		if err := l.rewards.UpdatePeriodStatus(ctx, p.Id, model.RewardPeriodStatusSuccess); err != nil {
			logger.Error("Failed to mark period %d as succeeded: %v", p.Id, err)
			return
		}
		report.Status = model.RewardPeriodStatusSuccess
		result.Succeeded++
		metrics.RewardPeriodsFinalized.WithLabelValues(string(model.RewardPeriodStatusSuccess)).Inc()
		logger.Info("Reward period %d succeeded, %s tokens sent to %d wallets", p.Id, report.SentTokens, report.SuccessCount)
		l.dispatcher.Publish(ctx, event.TypeRewardPeriodSucceeded, event.RewardPeriodSucceeded{Report: report})
	case report.PendingCount == 0 && report.SentTokens.IsZero():
		if err := l.rewards.UpdatePeriodStatus(ctx, p.Id, model.RewardPeriodStatusPartial); err != nil {
			logger.Error("Failed to mark period %d as partial: %v", p.Id, err)
			return
		}
		result.Partial++
		metrics.RewardPeriodsFinalized.WithLabelValues(string(model.RewardPeriodStatusPartial)).Inc()
		if report.ValidRewardCount > 0 {
			logger.Warn("Reward period %d marked as partial with %d eligible rewards and no token sent", p.Id, report.ValidRewardCount)
		} else {
			logger.Info("Reward period %d marked as partial, nothing to send", p.Id)
		}
	default:
		result.InProgress++
	}
}

// ReplaceRewardTransactions 交易被替换后，将奖励关联到新交易，新交易尚未登记时先登记
func (l *RewardLogic) ReplaceRewardTransactions(ctx context.Context, oldHash, newHash string) (int64, error) {
	oldHash, newHash = chain.NormalizeHash(oldHash), chain.NormalizeHash(newHash)
	found, err := l.txs.FindByHashes(ctx, []string{oldHash, newHash})
	if err != nil {
		return 0, err
	}
	oldTx, newTx := found[oldHash], found[newHash]
	if oldTx == nil {
		return 0, ErrTransactionNotFound
	}
	if newTx == nil {
		if newTx, err = l.submitter.TrackReplacement(ctx, oldHash, newHash); err != nil {
			return 0, err
		}
	}

	replaced, err := l.rewards.ReplaceTransaction(ctx, oldTx.Id, newTx.Id)
	if err != nil {
		return 0, fmt.Errorf("更新奖励交易失败: %w", err)
	}
	if replaced > 0 {
		logger.Info("Repointed %d rewards from transaction %s to %s", replaced, oldTx.GetHash(), newTx.GetHash())
	}
	return replaced, nil
}

// RefreshCurrentPeriod 保存当前周期的预估奖励
func (l *RewardLogic) RefreshCurrentPeriod(ctx context.Context) (*reward.Report, error) {
	settings := l.loadSettings(ctx)
	if settings == nil {
		return &reward.Report{}, nil
	}
	period, err := reward.ResolvePeriod(settings.PeriodType, l.now(), settings.TimeZone)
	if err != nil {
		logger.Warn("Failed to resolve reward period: %v", err)
		return &reward.Report{}, nil
	}

	unlock := l.periodLocks.Lock(period.Key())
	defer unlock()

	report, err := l.computeForPeriod(ctx, settings, period)
	if err != nil {
		return nil, err
	}
	if report.Status != model.RewardPeriodStatusNotStarted {
		return report, nil
	}

	stored, err := l.rewards.EnsurePeriod(ctx, &model.RewardPeriodModel{
		PeriodType: string(period.Type),
		StartTime:  period.Start,
		EndTime:    period.End,
		TimeZone:   period.TimeZone,
		Status:     model.RewardPeriodStatusNotStarted,
		BudgetType: string(settings.Budget.Type),
		Budget:     report.BudgetAmount,
		Threshold:  settings.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("保存奖励周期失败: %w", err)
	}
	if stored.Status != model.RewardPeriodStatusNotStarted {
		return report, nil
	}

	report.PeriodId = stored.Id
	for i := range report.Rewards {
		w := &report.Rewards[i]
		row := &model.WalletRewardModel{
			PeriodId:      stored.Id,
			IdentityId:    w.IdentityId,
			WalletAddress: w.WalletAddress,
			Points:        w.Points,
			Amount:        w.Amount,
			Enabled:       w.Enabled,
		}
		if err := l.rewards.SaveReward(ctx, row); err != nil {
			return nil, fmt.Errorf("保存预估奖励失败: %w", err)
		}
		w.Id = row.Id
	}
	logger.Info("Estimated rewards of current period %s saved: %d wallets", period.Key(), len(report.Rewards))
	return report, nil
}

// RemindUnsentPeriods 对已结束但尚未发放的周期发出提醒
func (l *RewardLogic) RemindUnsentPeriods(ctx context.Context) (int, error) {
	periods, err := l.rewards.FindPeriodsByStatus(ctx, model.RewardPeriodStatusNotStarted)
	if err != nil {
		return 0, err
	}

	now := l.now()
	reminded := 0
	for i := range periods {
		p := &periods[i]
		if !periodFromModel(p).HasEnded(now) {
			continue
		}
		l.dispatcher.Publish(ctx, event.TypeRewardPeriodNotSent, event.RewardPeriodNotSent{
			PeriodId:   p.Id,
			PeriodType: p.PeriodType,
			StartTime:  p.StartTime,
			EndTime:    p.EndTime,
		})
		reminded++
	}
	return reminded, nil
}

// GetPeriodReport 按周期 ID 获取已保存的奖励报告
func (l *RewardLogic) GetPeriodReport(ctx context.Context, periodId int64) (*reward.Report, error) {
	p, err := l.rewards.GetPeriodById(ctx, periodId)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return l.storedReport(ctx, p)
}

// ListRewards 查询用户的奖励历史
func (l *RewardLogic) ListRewards(ctx context.Context, identityId int64, limit int) ([]reward.WalletReward, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := l.rewards.FindRewardsByIdentity(ctx, identityId, limit)
	if err != nil {
		return nil, err
	}
	txs, err := l.findTransactions(ctx, rows)
	if err != nil {
		return nil, err
	}

	out := make([]reward.WalletReward, 0, len(rows))
	for _, r := range rows {
		out = append(out, toWalletReward(r, txs))
	}
	return out, nil
}

func (l *RewardLogic) storedReport(ctx context.Context, p *model.RewardPeriodModel) (*reward.Report, error) {
	rows, txs, err := l.loadRewards(ctx, p.Id)
	if err != nil {
		return nil, err
	}

	report := &reward.Report{
		PeriodId:     p.Id,
		Period:       periodFromModel(p),
		Status:       p.Status,
		BudgetType:   reward.BudgetType(p.BudgetType),
		BudgetAmount: p.Budget,
		Rewards:      make([]reward.WalletReward, 0, len(rows)),
	}
	for _, r := range rows {
		report.Rewards = append(report.Rewards, toWalletReward(r, txs))
	}
	report.Summarize()
	return report, nil
}

func (l *RewardLogic) loadRewards(ctx context.Context, periodId int64) ([]model.WalletRewardModel, map[int64]*model.TransactionModel, error) {
	rows, err := l.rewards.FindRewardsByPeriod(ctx, periodId)
	if err != nil {
		return nil, nil, fmt.Errorf("查询钱包奖励失败: %w", err)
	}
	txs, err := l.findTransactions(ctx, rows)
	if err != nil {
		return nil, nil, err
	}
	return rows, txs, nil
}

func (l *RewardLogic) findTransactions(ctx context.Context, rows []model.WalletRewardModel) (map[int64]*model.TransactionModel, error) {
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if r.TransactionId != nil {
			ids = append(ids, *r.TransactionId)
		}
	}
	if len(ids) == 0 {
		return map[int64]*model.TransactionModel{}, nil
	}
	txs, err := l.txs.FindByIds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询奖励交易失败: %w", err)
	}
	return txs, nil
}

func toWalletReward(r model.WalletRewardModel, txs map[int64]*model.TransactionModel) reward.WalletReward {
	w := reward.WalletReward{
		Id:            r.Id,
		IdentityId:    r.IdentityId,
		WalletAddress: r.WalletAddress,
		Points:        r.Points,
		Amount:        r.Amount,
		Enabled:       r.Enabled,
		TransactionId: r.TransactionId,
	}
	if r.TransactionId != nil {
		if tx := txs[*r.TransactionId]; tx != nil {
			w.TransactionHash = tx.GetHash()
			w.TransactionStatus = tx.Status
		} else {
			// 关联的交易已不存在，视为未发出
			w.TransactionStatus = model.TransactionStatusFailed
		}
	}
	return w
}

func periodFromModel(p *model.RewardPeriodModel) reward.Period {
	return reward.Period{
		Type:     reward.PeriodType(p.PeriodType),
		TimeZone: p.TimeZone,
		Start:    p.StartTime,
		End:      p.EndTime,
	}
}

func sortedRewards(rewards map[int64]*reward.WalletReward) []reward.WalletReward {
	out := make([]reward.WalletReward, 0, len(rewards))
	for _, w := range rewards {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityId < out[j].IdentityId })
	return out
}

// IsNotFound 是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrTransactionNotFound)
}
