package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/blues/wallet-reward/internal/chain"
	"github.com/blues/wallet-reward/internal/config"
	"github.com/blues/wallet-reward/internal/database/dbtest"
	"github.com/blues/wallet-reward/internal/model"
	"github.com/blues/wallet-reward/internal/repository"
	gethevent "github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	ownAddress    = "0x00000000000000000000000000000000000000ad"
	walletAddr    = "0x00000000000000000000000000000000000000c1"
	strangerAddr  = "0x00000000000000000000000000000000000000ee"
	otherStranger = "0x00000000000000000000000000000000000000ef"
)

func hashOf(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

type fakeLedger struct {
	mu            sync.Mutex
	head          uint64
	blocks        map[uint64][]chain.Transfer
	heads         chan<- uint64
	subscriptions int
	failures      chan error
}

func newFakeLedger(head uint64) *fakeLedger {
	return &fakeLedger{
		head:     head,
		blocks:   make(map[uint64][]chain.Transfer),
		failures: make(chan error),
	}
}

func (f *fakeLedger) ChainID() *big.Int { return big.NewInt(1337) }

func (f *fakeLedger) SendRawTransaction(context.Context, []byte) (string, error) {
	return "", errors.New("not supported")
}

func (f *fakeLedger) GetReceipt(context.Context, string) (*chain.Receipt, error) {
	return nil, chain.ErrNotFound
}

func (f *fakeLedger) GetTransaction(context.Context, string) (*chain.Transfer, error) {
	return nil, chain.ErrNotFound
}

func (f *fakeLedger) GetGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeLedger) PendingNonceAt(context.Context, string) (uint64, error) { return 0, nil }

func (f *fakeLedger) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeLedger) GetBlockTransfers(_ context.Context, number uint64) ([]chain.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks[number], nil
}

func (f *fakeLedger) SubscribeNewBlocks(_ context.Context, ch chan<- uint64) (chain.Subscription, error) {
	f.mu.Lock()
	f.heads = ch
	f.subscriptions++
	f.mu.Unlock()

	return gethevent.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-quit:
			return nil
		case err := <-f.failures:
			return err
		}
	}), nil
}

func (f *fakeLedger) subscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscriptions
}

func (f *fakeLedger) addBlock(number uint64, transfers ...chain.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[number] = transfers
}

// announce 出块并通知订阅者
func (f *fakeLedger) announce(number uint64) {
	f.mu.Lock()
	f.head = number
	ch := f.heads
	f.mu.Unlock()
	ch <- number
}

type fakeRefresher struct {
	mu     sync.Mutex
	hashes []string
	fail   func(hash string) error
}

func (r *fakeRefresher) RefreshTransactionFromLedger(_ context.Context, hash string) (*model.TransactionModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes = append(r.hashes, hash)
	if r.fail != nil {
		if err := r.fail(hash); err != nil {
			return nil, err
		}
	}
	return &model.TransactionModel{Hash: &hash}, nil
}

func (r *fakeRefresher) refreshed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.hashes...)
	sort.Strings(out)
	return out
}

func newTestMonitor(t *testing.T, db *gorm.DB, ledger *fakeLedger, refresher *fakeRefresher) *BlockMonitor {
	t.Helper()
	m := NewBlockMonitor(db, ledger, refresher, repository.NewWalletRepository(db), []string{ownAddress}, config.TransactionConfig{MonitorPoolSize: 2})
	m.backoffStep = 10 * time.Millisecond
	t.Cleanup(m.Stop)
	return m
}

func TestBlockMonitorRefreshesRelevantTransactions(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.WalletModel{IdentityId: 1, Address: walletAddr, Enabled: true}).Error)
	txs := repository.NewTransactionRepository(db)
	pending, mined := hashOf(1), hashOf(2)
	require.NoError(t, txs.Create(ctx, &model.TransactionModel{Hash: &pending, FromAddress: ownAddress, ToAddress: walletAddr, Nonce: 0, Status: model.TransactionStatusPending}))
	require.NoError(t, txs.Create(ctx, &model.TransactionModel{Hash: &mined, FromAddress: ownAddress, ToAddress: walletAddr, Nonce: 1, Status: model.TransactionStatusSucceeded}))
	require.NoError(t, repository.NewLedgerStateRepository(db).SetUint(ctx, model.LedgerStateLastWatchedBlock, 4))

	ledger := newFakeLedger(5)
	ledger.addBlock(5,
		chain.Transfer{Hash: pending, From: ownAddress, To: walletAddr},
		chain.Transfer{Hash: mined, From: ownAddress, To: walletAddr},
		chain.Transfer{Hash: hashOf(3), From: strangerAddr, To: walletAddr},
		chain.Transfer{Hash: hashOf(4), From: strangerAddr, To: otherStranger},
	)
	ledger.addBlock(6, chain.Transfer{Hash: hashOf(5), From: ownAddress, To: otherStranger})

	refresher := &fakeRefresher{}
	m := newTestMonitor(t, db, ledger, refresher)
	require.NoError(t, m.Start(ctx))

	require.Eventually(t, func() bool { return m.LastBlock() == 5 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hashOf(1), hashOf(3)}, refresher.refreshed())

	ledger.announce(6)
	require.Eventually(t, func() bool { return m.LastBlock() == 6 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hashOf(1), hashOf(3), hashOf(5)}, refresher.refreshed())

	m.Stop()
	last, found, err := repository.NewLedgerStateRepository(db).GetUint(ctx, model.LedgerStateLastWatchedBlock)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(6), last)
}

func TestBlockMonitorReconnectsAfterSubscriptionError(t *testing.T) {
	db := dbtest.New(t)
	ledger := newFakeLedger(10)
	refresher := &fakeRefresher{}
	m := newTestMonitor(t, db, ledger, refresher)
	require.NoError(t, m.Start(context.Background()))

	require.Eventually(t, func() bool { return ledger.subscriptionCount() == 1 && m.LastBlock() == 10 }, 5*time.Second, 10*time.Millisecond)

	// 断线期间出的块在重连后补齐
	ledger.addBlock(11, chain.Transfer{Hash: hashOf(7), From: ownAddress, To: otherStranger})
	ledger.mu.Lock()
	ledger.head = 11
	ledger.mu.Unlock()
	ledger.failures <- errors.New("websocket closed")

	require.Eventually(t, func() bool { return ledger.subscriptionCount() == 2 && m.LastBlock() == 11 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hashOf(7)}, refresher.refreshed())
}

func TestBlockMonitorStartsFromHeadAndStopsSafely(t *testing.T) {
	db := dbtest.New(t)
	ledger := newFakeLedger(100)
	refresher := &fakeRefresher{}
	m := newTestMonitor(t, db, ledger, refresher)

	// 未启动时停止无副作用
	m.Stop()

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return m.LastBlock() == 100 }, 5*time.Second, 10*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.Empty(t, refresher.refreshed())
}

func TestBlockMonitorRetriesBlockAfterRefreshFailure(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.WalletModel{IdentityId: 1, Address: walletAddr, Enabled: true}).Error)
	require.NoError(t, repository.NewLedgerStateRepository(db).SetUint(ctx, model.LedgerStateLastWatchedBlock, 4))

	ledger := newFakeLedger(5)
	ledger.addBlock(5, chain.Transfer{Hash: hashOf(3), From: strangerAddr, To: walletAddr})

	// 第一次刷新被节点限流
	calls := 0
	refresher := &fakeRefresher{fail: func(string) error {
		calls++
		if calls == 1 {
			return errors.New("429 too many requests")
		}
		return nil
	}}
	m := newTestMonitor(t, db, ledger, refresher)
	require.NoError(t, m.Start(ctx))

	require.Eventually(t, func() bool { return m.LastBlock() == 5 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hashOf(3), hashOf(3)}, refresher.refreshed())
	assert.Equal(t, 2, ledger.subscriptionCount())
}

func TestBlockMonitorSkipsPermanentRefreshFailure(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	require.NoError(t, repository.NewLedgerStateRepository(db).SetUint(ctx, model.LedgerStateLastWatchedBlock, 4))

	ledger := newFakeLedger(5)
	ledger.addBlock(5, chain.Transfer{Hash: hashOf(8), From: ownAddress, To: otherStranger})
	refresher := &fakeRefresher{fail: func(string) error {
		return errors.New("invalid argument 0: hex string has length 2")
	}}
	m := newTestMonitor(t, db, ledger, refresher)
	require.NoError(t, m.Start(ctx))

	require.Eventually(t, func() bool { return m.LastBlock() == 5 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hashOf(8)}, refresher.refreshed())
	assert.Equal(t, 1, ledger.subscriptionCount())
}

func TestBlockMonitorRestartsAfterStop(t *testing.T) {
	db := dbtest.New(t)
	ledger := newFakeLedger(100)
	refresher := &fakeRefresher{}
	m := newTestMonitor(t, db, ledger, refresher)

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return m.LastBlock() == 100 }, 5*time.Second, 10*time.Millisecond)
	m.Stop()

	// 停止期间出的块在再次启动后补齐
	ledger.addBlock(101, chain.Transfer{Hash: hashOf(9), From: ownAddress, To: otherStranger})
	ledger.mu.Lock()
	ledger.head = 102
	ledger.mu.Unlock()

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return m.LastBlock() == 102 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{hashOf(9)}, refresher.refreshed())
	assert.Equal(t, 2, ledger.subscriptionCount())

	assert.Error(t, m.Start(context.Background()))
	m.Stop()
}
