package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer 交易签名
type Signer interface {
	Addresses() []string
	SignTx(ctx context.Context, from string, tx *types.Transaction, chainId *big.Int) (*types.Transaction, error)
}

// KeySigner 使用本地私钥签名
type KeySigner struct {
	keys map[string]*ecdsa.PrivateKey
}

// NewKeySigner 从十六进制私钥创建签名器
func NewKeySigner(hexKeys ...string) (*KeySigner, error) {
	signer := &KeySigner{keys: make(map[string]*ecdsa.PrivateKey, len(hexKeys))}
	for _, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		address := NormalizeAddress(crypto.PubkeyToAddress(key.PublicKey).Hex())
		signer.keys[address] = key
	}
	return signer, nil
}

// Addresses 可签名的地址
func (s *KeySigner) Addresses() []string {
	addresses := make([]string, 0, len(s.keys))
	for address := range s.keys {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

// SignTx 签名交易
func (s *KeySigner) SignTx(_ context.Context, from string, tx *types.Transaction, chainId *big.Int) (*types.Transaction, error) {
	key, ok := s.keys[NormalizeAddress(from)]
	if !ok {
		return nil, fmt.Errorf("no key for address %s", from)
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainId), key)
}
