package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// GetBlockTransfers 提取区块内所有交易的转账信息
func (l *EthLedger) GetBlockTransfers(ctx context.Context, number uint64) ([]Transfer, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	block, err := l.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("error getting block %d: %w", number, err)
	}

	signer := types.LatestSignerForChainID(l.chainId)
	transfers := make([]Transfer, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		transfer, err := ExtractTransfer(tx, signer)
		if err != nil {
			// 无法识别的交易不影响其余交易
			continue
		}
		transfers = append(transfers, *transfer)
	}
	return transfers, nil
}

// ExtractTransfer 解析交易的发送方、接收方和金额，ERC20 transfer 调用解析为代币转账
func ExtractTransfer(tx *types.Transaction, signer types.Signer) (*Transfer, error) {
	if tx.To() == nil {
		return nil, fmt.Errorf("contract creation %s", tx.Hash().Hex())
	}
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender of %s: %w", tx.Hash().Hex(), err)
	}

	transfer := &Transfer{
		Hash:        tx.Hash().Hex(),
		From:        NormalizeAddress(from.Hex()),
		To:          NormalizeAddress(tx.To().Hex()),
		Value:       tx.Value(),
		TokenAmount: new(big.Int),
		Nonce:       tx.Nonce(),
	}

	if recipient, amount, ok := DecodeTransfer(tx.Data()); ok {
		transfer.ContractAddress = transfer.To
		transfer.To = NormalizeAddress(recipient.Hex())
		transfer.TokenAmount = amount
	}
	return transfer, nil
}
