package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt 已打包交易的回执
type Receipt struct {
	Hash           string
	Success        bool
	GasUsed        uint64
	GasPrice       *big.Int
	BlockHash      string
	BlockNumber    uint64
	BlockTimestamp int64
}

// Transfer 链上一笔交易的转账信息
type Transfer struct {
	Hash            string
	From            string
	To              string   // 代币转账时为代币接收方
	ContractAddress string   // 代币合约地址，原生币转账为空
	Value           *big.Int // 原生币数量
	TokenAmount     *big.Int // 代币数量
	Nonce           uint64
}

// Subscription 新区块订阅
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Ledger 链客户端
type Ledger interface {
	ChainID() *big.Int
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	// GetReceipt 未打包时返回 ErrNotFound
	GetReceipt(ctx context.Context, hash string) (*Receipt, error)
	GetTransaction(ctx context.Context, hash string) (*Transfer, error)
	GetGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, address string) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GetBlockTransfers(ctx context.Context, number uint64) ([]Transfer, error)
	SubscribeNewBlocks(ctx context.Context, ch chan<- uint64) (Subscription, error)
}

// NormalizeAddress 统一地址格式为小写
func NormalizeAddress(address string) string {
	return strings.ToLower(common.HexToAddress(address).Hex())
}

// NormalizeHash 统一哈希格式为小写
func NormalizeHash(hash string) string {
	return strings.ToLower(common.HexToHash(hash).Hex())
}

// IsAddress 是否为合法地址
func IsAddress(address string) bool {
	return common.IsHexAddress(address)
}
