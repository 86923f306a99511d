package chain

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

var erc20ABI = mustParseABI(erc20TransferABI)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// PackTransfer 编码 ERC20 transfer 调用
func PackTransfer(to string, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("transfer", common.HexToAddress(to), amount)
}

// DecodeTransfer 解码 ERC20 transfer 调用
func DecodeTransfer(data []byte) (common.Address, *big.Int, bool) {
	method := erc20ABI.Methods["transfer"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return common.Address{}, nil, false
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return common.Address{}, nil, false
	}
	to, ok := args[0].(common.Address)
	if !ok {
		return common.Address{}, nil, false
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, false
	}
	return to, amount, true
}

// TransferParams 构造转账交易的参数
type TransferParams struct {
	Nonce           uint64
	To              string
	ContractAddress string // 为空表示原生币转账
	Value           *big.Int
	TokenAmount     *big.Int
	GasPrice        *big.Int
	GasLimit        uint64
}

// NewTransferTx 构造未签名的转账交易
func NewTransferTx(p TransferParams) (*types.Transaction, error) {
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}

	to := common.HexToAddress(p.To)
	var data []byte
	if p.ContractAddress != "" {
		packed, err := PackTransfer(p.To, p.TokenAmount)
		if err != nil {
			return nil, fmt.Errorf("pack transfer: %w", err)
		}
		to = common.HexToAddress(p.ContractAddress)
		data = packed
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: p.GasPrice,
		Gas:      p.GasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	}), nil
}
