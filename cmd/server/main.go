package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/blues/wallet-reward/internal/chain"
	"github.com/blues/wallet-reward/internal/config"
	"github.com/blues/wallet-reward/internal/database"
	"github.com/blues/wallet-reward/internal/event"
	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/logic"
	"github.com/blues/wallet-reward/internal/monitor"
	"github.com/blues/wallet-reward/internal/repository"
	"github.com/blues/wallet-reward/internal/reward"
	"github.com/blues/wallet-reward/internal/reward/plugin"
	"github.com/blues/wallet-reward/internal/router"
	"github.com/blues/wallet-reward/internal/task"
)

func main() {
	// 加载配置
	cfg := config.Load()

	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链客户端
	ledger, err := chain.NewEthLedger(ctx, cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize ledger client: %v", err)
	}
	defer ledger.Close()

	var keys []string
	if cfg.Chain.AdminPrivateKey != "" {
		keys = append(keys, cfg.Chain.AdminPrivateKey)
	}
	signer, err := chain.NewKeySigner(keys...)
	if err != nil {
		logger.Fatal("Failed to load admin key: %v", err)
	}
	var adminAddress string
	if addresses := signer.Addresses(); len(addresses) > 0 {
		adminAddress = addresses[0]
		logger.Info("Admin wallet: %s", adminAddress)
	} else {
		logger.Warn("No admin private key configured, reward sending is disabled")
	}

	dispatcher := event.NewDispatcher()
	for _, t := range event.AllTypes() {
		dispatcher.Register(t, event.LogListener())
	}

	txLogic := logic.NewTransactionLogic(db, ledger, signer, dispatcher, cfg.Transaction, cfg.Chain)
	if err := txLogic.UpdateGasPrice(ctx); err != nil {
		logger.Warn("Failed to fetch initial gas price: %v", err)
	}

	settings, err := reward.SettingsFromConfig(cfg.Reward)
	if err != nil {
		logger.Fatal("Invalid reward settings: %v", err)
	}
	points := repository.NewPointRecordRepository(db)
	registry := reward.NewRegistry()
	pluginIds := cfg.Reward.EnabledPlugins
	if len(pluginIds) == 0 {
		pluginIds = []string{"point_ledger"}
	}
	for _, id := range pluginIds {
		registry.Register(plugin.NewPointLedgerPlugin(id, points))
	}

	wallets := repository.NewWalletRepository(db)
	rewardLogic := logic.NewRewardLogic(db, wallets, reward.NewStaticSettingsProvider(settings), registry, txLogic, dispatcher, logic.RewardOptions{
		AdminAddress:  adminAddress,
		TokenAddress:  cfg.Chain.TokenAddress,
		TokenDecimals: cfg.Chain.TokenDecimals,
		PluginTimeout: cfg.Reward.PluginTimeout,
	})
	rewardLogic.RegisterListeners(dispatcher)

	// 启动区块监控
	var blockMonitor *monitor.BlockMonitor
	if cfg.Transaction.WatchBlockchain {
		blockMonitor = monitor.NewBlockMonitor(db, ledger, txLogic, wallets, signer.Addresses(), cfg.Transaction)
		if err := blockMonitor.Start(ctx); err != nil {
			logger.Fatal("Failed to start block monitor: %v", err)
		}
	}

	// 启动定时任务
	taskManager, err := task.NewManager(
		task.NewPendingTransactionJob(txLogic, cfg.Task.PendingTransactionInterval, cfg.Transaction.MaxPendingAge),
		task.NewRewardStatusJob(rewardLogic, cfg.Task.RewardStatusInterval),
		task.NewRewardPeriodJob(rewardLogic, cfg.Task.RewardPeriodInterval),
		task.NewRewardReminderJob(rewardLogic, cfg.Task.RewardReminderInterval),
		task.NewGasPriceJob(txLogic, cfg.Task.GasPriceInterval),
	)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	if err := taskManager.RegisterJobs(); err != nil {
		logger.Fatal("Failed to register jobs: %v", err)
	}
	taskManager.Start()

	// 初始化路由
	r := router.Setup(cfg.Server, router.Services{
		Rewards:      rewardLogic,
		Transactions: txLogic,
		Health:       ledger,
	})
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server: %v", err)
	}
	taskManager.Stop()
	if blockMonitor != nil {
		blockMonitor.Stop()
	}
}
