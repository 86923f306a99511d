package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/wallet-reward/internal/cache"
	"github.com/blues/wallet-reward/internal/chain"
	"github.com/blues/wallet-reward/internal/config"
	"github.com/blues/wallet-reward/internal/logger"
	"github.com/blues/wallet-reward/internal/logic"
	"github.com/blues/wallet-reward/internal/metrics"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/repository"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

const (
	maxCatchUpBlocks = 5000
	trackedCacheTTL  = 5 * time.Minute
)

// TransactionRefresher 根据链上回执刷新交易
type TransactionRefresher interface {
	RefreshTransactionFromLedger(ctx context.Context, hash string) (*model.TransactionModel, error)
}

// AddressTracker 判断地址是否属于本系统
type AddressTracker interface {
	IsTracked(ctx context.Context, address string) (bool, error)
}

// BlockMonitor 订阅新区块，刷新本地交易并记录涉及本系统地址的外部交易
type BlockMonitor struct {
	ledger    chain.Ledger
	refresher TransactionRefresher
	txs       *repository.TransactionRepository
	state     *repository.LedgerStateRepository
	tracked   *cache.Loader[string, bool]
	poolSize  int

	mu          sync.Mutex
	lastBlock   uint64
	retryCount  int
	backoffStep time.Duration // 每次重试增加的退避时间
	maxBackoff  time.Duration
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewBlockMonitor 创建区块监控器
func NewBlockMonitor(
	db *gorm.DB,
	ledger chain.Ledger,
	refresher TransactionRefresher,
	tracker AddressTracker,
	ownAddresses []string,
	cfg config.TransactionConfig,
) *BlockMonitor {
	own := make(map[string]bool, len(ownAddresses))
	for _, address := range ownAddresses {
		own[chain.NormalizeAddress(address)] = true
	}

	poolSize := cfg.MonitorPoolSize
	if poolSize <= 0 {
		poolSize = 8
	}

	return &BlockMonitor{
		ledger:    ledger,
		refresher: refresher,
		txs:       repository.NewTransactionRepository(db),
		state:     repository.NewLedgerStateRepository(db),
		tracked: cache.NewLoader[string, bool](trackedCacheTTL, func(ctx context.Context, address string) (bool, error) {
			if own[address] {
				return true, nil
			}
			return tracker.IsTracked(ctx, address)
		}),
		poolSize:    poolSize,
		backoffStep: 10 * time.Second,
		maxBackoff:  5 * time.Minute,
	}
}

// Start 启动监控，从上次处理的区块继续
func (m *BlockMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return errors.New("block monitor already started")
	}

	last, found, err := m.state.GetUint(ctx, model.LedgerStateLastWatchedBlock)
	if err != nil {
		return fmt.Errorf("failed to load last watched block: %w", err)
	}
	if !found {
		head, err := m.ledger.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect to blockchain: %w", err)
		}
		if head > 0 {
			last = head - 1
		}
	}
	m.lastBlock = last
	m.retryCount = 0
	metrics.LastWatchedBlock.Set(float64(last))
	logger.Info("Starting block monitor from block %d", last+1)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go m.run(runCtx, done)
	return nil
}

// Stop 停止监控并等待正在处理的区块结束，可重复调用，停止后可再次 Start
func (m *BlockMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	m.mu.Lock()
	if m.done == done {
		m.cancel, m.done = nil, nil
	}
	m.mu.Unlock()
	logger.Info("Block monitor stopped")
}

// LastBlock 最后处理完成的区块
func (m *BlockMonitor) LastBlock() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBlock
}

func (m *BlockMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		err := m.watch(ctx)
		if ctx.Err() != nil {
			return
		}

		backoff := m.nextBackoff()
		metrics.MonitorReconnects.Inc()
		logger.Error("Block subscription failed: %v, reconnecting in %s", err, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// nextBackoff 退避时间随重试次数线性增长，有上限
func (m *BlockMonitor) nextBackoff() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retryCount++
	backoff := m.backoffStep * time.Duration(m.retryCount)
	if backoff > m.maxBackoff {
		backoff = m.maxBackoff
	}
	return backoff
}

func (m *BlockMonitor) watch(ctx context.Context) error {
	heads := make(chan uint64, 16)
	sub, err := m.ledger.SubscribeNewBlocks(ctx, heads)
	if err != nil {
		return fmt.Errorf("subscribe new blocks: %w", err)
	}
	defer sub.Unsubscribe()

	// 订阅建立后补齐断开期间的区块
	head, err := m.ledger.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get block number: %w", err)
	}
	if err := m.processUpTo(ctx, head); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case head := <-heads:
			if err := m.processUpTo(ctx, head); err != nil {
				return err
			}
		}
	}
}

func (m *BlockMonitor) processUpTo(ctx context.Context, head uint64) error {
	from := m.LastBlock() + 1
	if head < from {
		return nil
	}
	if head-from+1 > maxCatchUpBlocks {
		skipped := head - maxCatchUpBlocks + 1
		logger.Warn("Block monitor is %d blocks behind, skipping blocks %d to %d", head-from+1, from, skipped-1)
		from = skipped
	}

	for n := from; n <= head; n++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.processBlock(ctx, n); err != nil {
			return fmt.Errorf("process block %d: %w", n, err)
		}
		if err := m.markProcessed(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *BlockMonitor) processBlock(ctx context.Context, number uint64) error {
	transfers, err := m.ledger.GetBlockTransfers(ctx, number)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		return nil
	}

	hashes := make([]string, 0, len(transfers))
	for _, t := range transfers {
		hashes = append(hashes, chain.NormalizeHash(t.Hash))
	}
	known, err := m.txs.FindByHashes(ctx, hashes)
	if err != nil {
		return err
	}

	targets := make([]string, 0)
	for i, t := range transfers {
		hash := hashes[i]
		if local, ok := known[hash]; ok {
			if !local.Status.IsTerminal() {
				targets = append(targets, hash)
			}
			continue
		}

		tracked, err := m.isTracked(ctx, t)
		if err != nil {
			return err
		}
		if tracked {
			targets = append(targets, hash)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	logger.Debug("Refreshing %d transactions of block %d", len(targets), number)
	return m.refreshAll(ctx, targets)
}

func (m *BlockMonitor) isTracked(ctx context.Context, t chain.Transfer) (bool, error) {
	for _, address := range []string{t.From, t.To} {
		if address == "" {
			continue
		}
		tracked, err := m.tracked.Get(ctx, chain.NormalizeAddress(address))
		if err != nil {
			return false, err
		}
		if tracked {
			return true, nil
		}
	}
	return false, nil
}

// refreshAll 并发刷新，存在可重试的失败时返回错误，区块保持未处理状态
func (m *BlockMonitor) refreshAll(ctx context.Context, hashes []string) error {
	size := m.poolSize
	if len(hashes) < size {
		size = len(hashes)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return fmt.Errorf("create refresh pool: %w", err)
	}
	defer pool.Release()

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for _, hash := range hashes {
		wg.Add(1)
		hash := hash
		err := pool.Submit(func() {
			defer wg.Done()
			_, err := m.refresher.RefreshTransactionFromLedger(ctx, hash)
			switch {
			case err == nil:
			case errors.Is(err, logic.ErrTransactionNotFound):
				logger.Debug("Receipt of %s not available yet", hash)
			case chain.Classify(err).IsTransient():
				logger.Warn("Failed to refresh transaction %s: %v", hash, err)
				failed.Add(1)
			default:
				logger.Error("Failed to refresh transaction %s, skipping it: %v", hash, err)
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit refresh of %s: %v", hash, err)
			failed.Add(1)
		}
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("refresh %d of %d transactions failed", n, len(hashes))
	}
	return nil
}

func (m *BlockMonitor) markProcessed(ctx context.Context, number uint64) error {
	if err := m.state.SetUint(ctx, model.LedgerStateLastWatchedBlock, number); err != nil {
		return fmt.Errorf("save last watched block: %w", err)
	}

	m.mu.Lock()
	m.lastBlock = number
	m.retryCount = 0
	m.mu.Unlock()

	metrics.BlocksProcessed.Inc()
	metrics.LastWatchedBlock.Set(float64(number))
	return nil
}
