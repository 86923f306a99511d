package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/blues/wallet-reward/internal/logic"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/reward"
	"github.com/gin-gonic/gin"
)

// RewardService 奖励引擎对外操作
type RewardService interface {
	ComputeRewards(ctx context.Context, anchor time.Time) (*reward.Report, error)
	SendRewards(ctx context.Context, anchor time.Time, actingUser string) (*logic.SendResult, error)
	IsRewardSendingInProgress(ctx context.Context) (bool, error)
	GetRewardPeriodsInProgress(ctx context.Context) ([]model.RewardPeriodModel, error)
	GetPeriodReport(ctx context.Context, periodId int64) (*reward.Report, error)
	ListRewards(ctx context.Context, identityId int64, limit int) ([]reward.WalletReward, error)
	ReplaceRewardTransactions(ctx context.Context, oldHash, newHash string) (int64, error)
}

type RewardHandler struct {
	rewards RewardService
	now     func() time.Time
}

func NewRewardHandler(rewards RewardService) *RewardHandler {
	return &RewardHandler{
		rewards: rewards,
		now:     time.Now,
	}
}

// GetReport 计算锚点日期所在周期的奖励报告
func (h *RewardHandler) GetReport(c *gin.Context) {
	anchor, err := h.parseAnchor(c.Query("anchor"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的日期")
		return
	}

	report, err := h.rewards.ComputeRewards(c.Request.Context(), anchor)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取奖励报告成功", report)
}

// SendRewards 发放锚点日期所在周期的奖励
func (h *RewardHandler) SendRewards(c *gin.Context) {
	var req SendRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	anchor, err := h.parseAnchor(req.Anchor)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的日期")
		return
	}

	result, err := h.rewards.SendRewards(c.Request.Context(), anchor, req.ActingUser)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "奖励发放完成", result)
}

// GetPeriodsInProgress 发放中的周期
func (h *RewardHandler) GetPeriodsInProgress(c *gin.Context) {
	ctx := c.Request.Context()
	sending, err := h.rewards.IsRewardSendingInProgress(ctx)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	periods, err := h.rewards.GetRewardPeriodsInProgress(ctx)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取发放中周期成功", PeriodsInProgressResponse{
		Sending: sending,
		Periods: periods,
	})
}

// GetPeriodReport 获取已保存周期的奖励报告
func (h *RewardHandler) GetPeriodReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的周期ID")
		return
	}

	report, err := h.rewards.GetPeriodReport(c.Request.Context(), id)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取周期报告成功", report)
}

// ListRewards 用户奖励历史
func (h *RewardHandler) ListRewards(c *gin.Context) {
	identityId, err := strconv.ParseInt(c.Param("identityId"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "无效的用户ID")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	rewards, err := h.rewards.ListRewards(c.Request.Context(), identityId, limit)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取奖励历史成功", rewards)
}

// ReplaceTransaction 将奖励关联的交易从旧哈希改为新哈希
func (h *RewardHandler) ReplaceTransaction(c *gin.Context) {
	var req ReplaceHashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.rewards.ReplaceRewardTransactions(c.Request.Context(), req.OldHash, req.NewHash)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "交易哈希替换成功", gin.H{"updated": updated})
}

func (h *RewardHandler) parseAnchor(value string) (time.Time, error) {
	if value == "" {
		return h.now(), nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
