package txn

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/core/failure"
)

// Signer owns the credential transactions are sent from.
type Signer interface {
	Address() common.Address
	Sign(op *domain.PendingOperation, chainID *big.Int) (*types.Transaction, error)
}

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner parses a hex private key, with or without 0x prefix.
func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

// Sign builds a dynamic-fee transaction when the operation carries EIP-1559
// fees and a legacy one otherwise.
func (s *KeySigner) Sign(op *domain.PendingOperation, chainID *big.Int) (*types.Transaction, error) {
	if op.Nonce == nil {
		return nil, failure.New(failure.KindValidation, "operation has no nonce", failure.Context{Operation: "sign"})
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, failure.New(failure.KindValidation, "chain id is required", failure.Context{Operation: "sign"})
	}

	to := op.Target
	value := op.Value
	if value == nil {
		value = new(big.Int)
	}

	var inner types.TxData
	if op.UsesDynamicFee() {
		inner = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     *op.Nonce,
			GasTipCap: op.MaxPriorityFeePerGas,
			GasFeeCap: op.MaxFeePerGas,
			Gas:       op.GasLimit,
			To:        &to,
			Value:     value,
			Data:      op.Data,
		}
	} else {
		if op.GasPrice == nil {
			return nil, failure.New(failure.KindValidation, "operation has no gas price", failure.Context{Operation: "sign"})
		}
		inner = &types.LegacyTx{
			Nonce:    *op.Nonce,
			GasPrice: op.GasPrice,
			Gas:      op.GasLimit,
			To:       &to,
			Value:    value,
			Data:     op.Data,
		}
	}

	tx, err := types.SignNewTx(s.key, types.LatestSignerForChainID(chainID), inner)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}
