package handler

import (
	"context"
	"math/big"
	"net/http"

	"github.com/blues/wallet-reward/internal/model"
	"github.com/gin-gonic/gin"
)

// TransactionService 交易生命周期对外操作
type TransactionService interface {
	GetTransaction(ctx context.Context, hash string) (*model.TransactionModel, error)
	RefreshTransactionFromLedger(ctx context.Context, hash string) (*model.TransactionModel, error)
	BoostTransaction(ctx context.Context, hash string, gasPrice *big.Int) (*model.TransactionModel, error)
}

type TransactionHandler struct {
	txs TransactionService
}

func NewTransactionHandler(txs TransactionService) *TransactionHandler {
	return &TransactionHandler{txs: txs}
}

// GetTransaction 查询交易
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	tx, err := h.txs.GetTransaction(c.Request.Context(), c.Param("hash"))
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "获取交易成功", tx)
}

// RefreshTransaction 按链上回执刷新交易状态
func (h *TransactionHandler) RefreshTransaction(c *gin.Context) {
	tx, err := h.txs.RefreshTransactionFromLedger(c.Request.Context(), c.Param("hash"))
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "交易状态已刷新", tx)
}

// BoostTransaction 提高 gas 价格重新发送
func (h *TransactionHandler) BoostTransaction(c *gin.Context) {
	var req BoostRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	var gasPrice *big.Int
	if req.GasPrice != "" {
		price, ok := new(big.Int).SetString(req.GasPrice, 10)
		if !ok || price.Sign() <= 0 {
			ErrorResponse(c, http.StatusBadRequest, "无效的 gas 价格")
			return
		}
		gasPrice = price
	}

	tx, err := h.txs.BoostTransaction(c.Request.Context(), c.Param("hash"), gasPrice)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "交易已加速", tx)
}
