package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/blues/wallet-reward/internal/config"
	"github.com/blues/wallet-reward/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/time/rate"
)

// EthLedger 基于 ethclient 的链客户端
type EthLedger struct {
	mu       sync.RWMutex
	client   *ethclient.Client // HTTP 客户端
	wsClient *ethclient.Client // 订阅使用的 WebSocket 客户端
	chainId  *big.Int
	token    string
	limiter  *rate.Limiter
	config   config.ChainConfig
}

// NewEthLedger 创建链客户端并测试连接
func NewEthLedger(ctx context.Context, cfg config.ChainConfig) (*EthLedger, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	logger.Info("Creating chain client connection (RPC: %s, chain id: %d)", cfg.RpcUrl, cfg.ChainId)
	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	// 测试连接
	chainId, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed: %w", err)
	}
	if cfg.ChainId != 0 && chainId.Int64() != cfg.ChainId {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: config=%d, node=%s", cfg.ChainId, chainId)
	}

	ledger := &EthLedger{
		client:  client,
		chainId: chainId,
		limiter: newLimiter(cfg.RequestsPerSecond, cfg.RequestBurst),
		config:  cfg,
	}
	if cfg.TokenAddress != "" {
		ledger.token = NormalizeAddress(cfg.TokenAddress)
	}

	if cfg.WsUrl != "" {
		wsClient, err := ethclient.DialContext(ctx, cfg.WsUrl)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create websocket client: %w", err)
		}
		ledger.wsClient = wsClient
	}

	logger.Info("Successfully created chain client, chain id: %s", chainId)
	return ledger, nil
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ChainID 获取链ID
func (l *EthLedger) ChainID() *big.Int {
	return new(big.Int).Set(l.chainId)
}

func (l *EthLedger) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return Transient(fmt.Errorf("rate limit wait: %w", err))
	}
	return nil
}

// SendRawTransaction 广播已签名交易
func (l *EthLedger) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", Terminal(fmt.Errorf("decode raw transaction: %w", err))
	}
	if err := l.wait(ctx); err != nil {
		return "", err
	}
	if err := l.client.SendTransaction(ctx, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// GetReceipt 获取交易回执
func (l *EthLedger) GetReceipt(ctx context.Context, hash string) (*Receipt, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	receipt, err := l.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	header, err := l.client.HeaderByHash(ctx, receipt.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("get block header %s: %w", receipt.BlockHash.Hex(), err)
	}

	return &Receipt{
		Hash:           NormalizeHash(hash),
		Success:        receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed:        receipt.GasUsed,
		GasPrice:       receipt.EffectiveGasPrice,
		BlockHash:      receipt.BlockHash.Hex(),
		BlockNumber:    receipt.BlockNumber.Uint64(),
		BlockTimestamp: int64(header.Time),
	}, nil
}

// GetTransaction 获取交易详情
func (l *EthLedger) GetTransaction(ctx context.Context, hash string) (*Transfer, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	tx, _, err := l.client.TransactionByHash(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ExtractTransfer(tx, types.LatestSignerForChainID(l.chainId))
}

// GetGasPrice 获取建议 gas 价格
func (l *EthLedger) GetGasPrice(ctx context.Context) (*big.Int, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.client.SuggestGasPrice(ctx)
}

// PendingNonceAt 获取地址的下一个可用 nonce（含交易池）
func (l *EthLedger) PendingNonceAt(ctx context.Context, address string) (uint64, error) {
	if err := l.wait(ctx); err != nil {
		return 0, err
	}
	return l.client.PendingNonceAt(ctx, common.HexToAddress(address))
}

// BlockNumber 获取当前区块号
func (l *EthLedger) BlockNumber(ctx context.Context) (uint64, error) {
	if err := l.wait(ctx); err != nil {
		return 0, err
	}
	return l.client.BlockNumber(ctx)
}

// SubscribeNewBlocks 订阅新区块，推送区块号
func (l *EthLedger) SubscribeNewBlocks(ctx context.Context, ch chan<- uint64) (Subscription, error) {
	l.mu.RLock()
	wsClient := l.wsClient
	l.mu.RUnlock()
	if wsClient == nil {
		return nil, Terminal(fmt.Errorf("block subscription requires ws_url"))
	}

	heads := make(chan *types.Header, 16)
	sub, err := wsClient.SubscribeNewHead(ctx, heads)
	if err != nil {
		return nil, err
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case head := <-heads:
				select {
				case ch <- head.Number.Uint64():
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// GetHealthStatus 获取节点健康状态
func (l *EthLedger) GetHealthStatus(ctx context.Context) map[string]interface{} {
	status := map[string]interface{}{
		"chain_id":     l.chainId.String(),
		"subscription": l.wsClient != nil,
	}
	blockNumber, err := l.client.BlockNumber(ctx)
	if err != nil {
		status["healthy"] = false
		status["error"] = err.Error()
		return status
	}
	status["healthy"] = true
	status["block_number"] = blockNumber
	return status
}

// Close 关闭连接
func (l *EthLedger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.client.Close()
	if l.wsClient != nil {
		l.wsClient.Close()
	}
}
