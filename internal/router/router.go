package router

import (
	"github.com/blues/wallet-reward/internal/config"
	"github.com/blues/wallet-reward/internal/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services 路由依赖的业务服务
type Services struct {
	Rewards      handler.RewardService
	Transactions handler.TransactionService
	Health       handler.HealthChecker
}

func Setup(cfg config.ServerConfig, services Services) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", handler.NewHealthHandler(services.Health).Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 奖励相关路由
		rewardHandler := handler.NewRewardHandler(services.Rewards)
		rewards := v1.Group("/rewards")
		{
			rewards.GET("/report", rewardHandler.GetReport)
			rewards.POST("/send", rewardHandler.SendRewards)
			rewards.GET("/periods/in-progress", rewardHandler.GetPeriodsInProgress)
			rewards.GET("/periods/:id", rewardHandler.GetPeriodReport)
			rewards.GET("/identities/:identityId", rewardHandler.ListRewards)
			rewards.POST("/transactions/replace", rewardHandler.ReplaceTransaction)
		}

		// 交易相关路由
		txHandler := handler.NewTransactionHandler(services.Transactions)
		transactions := v1.Group("/transactions")
		{
			transactions.GET("/:hash", txHandler.GetTransaction)
			transactions.POST("/:hash/refresh", txHandler.RefreshTransaction)
			transactions.POST("/:hash/boost", txHandler.BoostTransaction)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
