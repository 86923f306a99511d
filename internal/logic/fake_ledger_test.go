package logic

import (
	"context"
	"math/big"
	"sync"

	"github.com/blues/wallet-reward/internal/chain"
	"github.com/ethereum/go-ethereum/core/types"
	gethevent "github.com/ethereum/go-ethereum/event"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// fakeLedger 内存链，按发送顺序记录交易
type fakeLedger struct {
	mu        sync.Mutex
	chainId   *big.Int
	gasPrice  *big.Int
	nonces    map[string]uint64
	sends     map[string]int
	sent      map[string]*types.Transaction
	receipts  map[string]*chain.Receipt
	transfers map[string]*chain.Transfer
	sendErr   func(tx *types.Transaction) error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		chainId:   big.NewInt(1337),
		gasPrice:  big.NewInt(10),
		nonces:    make(map[string]uint64),
		sends:     make(map[string]int),
		sent:      make(map[string]*types.Transaction),
		receipts:  make(map[string]*chain.Receipt),
		transfers: make(map[string]*chain.Transfer),
	}
}

func (f *fakeLedger) ChainID() *big.Int {
	return f.chainId
}

func (f *fakeLedger) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", err
	}
	from, err := types.Sender(types.LatestSignerForChainID(f.chainId), tx)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		if err := f.sendErr(tx); err != nil {
			return "", err
		}
	}

	hash := chain.NormalizeHash(tx.Hash().Hex())
	sender := chain.NormalizeAddress(from.Hex())
	f.sends[hash]++
	f.sent[hash] = tx
	if tx.Nonce()+1 > f.nonces[sender] {
		f.nonces[sender] = tx.Nonce() + 1
	}
	return hash, nil
}

func (f *fakeLedger) GetReceipt(_ context.Context, hash string) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.receipts[chain.NormalizeHash(hash)]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return r, nil
}

func (f *fakeLedger) GetTransaction(_ context.Context, hash string) (*chain.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.transfers[chain.NormalizeHash(hash)]
	if !ok {
		return nil, chain.ErrNotFound
	}
	return t, nil
}

func (f *fakeLedger) GetGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeLedger) PendingNonceAt(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[chain.NormalizeAddress(address)], nil
}

func (f *fakeLedger) BlockNumber(context.Context) (uint64, error) {
	return 0, nil
}

func (f *fakeLedger) GetBlockTransfers(context.Context, uint64) ([]chain.Transfer, error) {
	return nil, nil
}

func (f *fakeLedger) SubscribeNewBlocks(ctx context.Context, _ chan<- uint64) (chain.Subscription, error) {
	return gethevent.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (f *fakeLedger) setGasPrice(price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gasPrice = big.NewInt(price)
}

func (f *fakeLedger) setNonce(address string, nonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[chain.NormalizeAddress(address)] = nonce
}

func (f *fakeLedger) sendCount(hash string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[chain.NormalizeHash(hash)]
}

// mine 为交易生成回执
func (f *fakeLedger) mine(hash string, success bool, block uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hash = chain.NormalizeHash(hash)
	f.receipts[hash] = &chain.Receipt{
		Hash:           hash,
		Success:        success,
		GasUsed:        21000,
		GasPrice:       big.NewInt(10),
		BlockHash:      "0xb10c",
		BlockNumber:    block,
		BlockTimestamp: 1700000000,
	}
}

// addExternal 模拟其他客户端发出并已打包的交易
func (f *fakeLedger) addExternal(t chain.Transfer, block uint64) {
	f.mine(t.Hash, true, block)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers[chain.NormalizeHash(t.Hash)] = &t
}
