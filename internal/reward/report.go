package reward

import (
	"github.com/blues/wallet-reward/internal/model"
	"github.com/shopspring/decimal"
)

// WalletReward 报告中的单个钱包奖励
type WalletReward struct {
	Id                int64                   `json:"id"`
	IdentityId        int64                   `json:"identity_id"`
	WalletAddress     string                  `json:"wallet_address"`
	Points            float64                 `json:"points"`
	Amount            decimal.Decimal         `json:"amount"`
	Enabled           bool                    `json:"enabled"`
	TransactionId     *int64                  `json:"transaction_id"`
	TransactionHash   string                  `json:"transaction_hash"`
	TransactionStatus model.TransactionStatus `json:"transaction_status"`
}

// IsValid 是否需要发放
func (w *WalletReward) IsValid() bool {
	return w.Enabled && w.Amount.IsPositive()
}

// IsSent 交易已发出且未失败
func (w *WalletReward) IsSent() bool {
	switch w.TransactionStatus {
	case model.TransactionStatusCreated, model.TransactionStatusPending, model.TransactionStatusReplaced, model.TransactionStatusSucceeded:
		return w.TransactionId != nil
	}
	return false
}

// Report 周期奖励报告
type Report struct {
	PeriodId     int64                    `json:"period_id"`
	Period       Period                   `json:"period"`
	Status       model.RewardPeriodStatus `json:"status"`
	BudgetType   BudgetType               `json:"budget_type"`
	BudgetAmount decimal.Decimal          `json:"budget_amount"`
	Rewards      []WalletReward           `json:"rewards"`

	ValidRewardCount int             `json:"valid_reward_count"`
	SuccessCount     int             `json:"success_count"`
	FailedCount      int             `json:"failed_count"`
	PendingCount     int             `json:"pending_count"`
	SentTokens       decimal.Decimal `json:"sent_tokens"`
	TokensToSend     decimal.Decimal `json:"tokens_to_send"`
	PendingTokens    decimal.Decimal `json:"pending_tokens"`
	RemainingTokens  decimal.Decimal `json:"remaining_tokens"`
}

// Summarize 重新计算统计字段
func (r *Report) Summarize() {
	r.ValidRewardCount, r.SuccessCount, r.FailedCount, r.PendingCount = 0, 0, 0, 0
	r.SentTokens, r.TokensToSend, r.PendingTokens = decimal.Zero, decimal.Zero, decimal.Zero

	for i := range r.Rewards {
		w := &r.Rewards[i]
		if !w.IsValid() {
			continue
		}
		r.ValidRewardCount++

		if w.TransactionId == nil {
			r.TokensToSend = r.TokensToSend.Add(w.Amount)
			continue
		}
		switch w.TransactionStatus {
		case model.TransactionStatusSucceeded:
			r.SuccessCount++
			r.SentTokens = r.SentTokens.Add(w.Amount)
		case model.TransactionStatusFailed:
			r.FailedCount++
			r.TokensToSend = r.TokensToSend.Add(w.Amount)
		default:
			r.PendingCount++
			r.PendingTokens = r.PendingTokens.Add(w.Amount)
		}
	}

	r.RemainingTokens = r.BudgetAmount.Sub(r.SentTokens).Sub(r.PendingTokens).Sub(r.TokensToSend)
	if r.RemainingTokens.IsNegative() {
		r.RemainingTokens = decimal.Zero
	}
}

// IsCompletelyProceeded 所有需要发放的奖励都已成功
func (r *Report) IsCompletelyProceeded() bool {
	return r.ValidRewardCount > 0 && r.SuccessCount == r.ValidRewardCount
}

// Reward 按用户查找奖励
func (r *Report) Reward(identityId int64) *WalletReward {
	for i := range r.Rewards {
		if r.Rewards[i].IdentityId == identityId {
			return &r.Rewards[i]
		}
	}
	return nil
}
