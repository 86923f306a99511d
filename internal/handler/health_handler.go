package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker 链节点健康检查
type HealthChecker interface {
	GetHealthStatus(ctx context.Context) map[string]interface{}
}

type HealthHandler struct {
	ledger HealthChecker
}

func NewHealthHandler(ledger HealthChecker) *HealthHandler {
	return &HealthHandler{ledger: ledger}
}

// Health 服务与链节点健康状态
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	ledger := h.ledger.GetHealthStatus(ctx)
	status, code := "ok", http.StatusOK
	if healthy, _ := ledger["healthy"].(bool); !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "wallet-reward",
		"ledger":  ledger,
	})
}
