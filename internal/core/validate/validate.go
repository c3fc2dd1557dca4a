// Package validate checks caller input before anything reaches the ledger.
// Every failure is a VALIDATION record, never retried.
package validate

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftrelay/internal/core/failure"
)

const (
	MinGrade = 1.0
	MaxGrade = 10.0
	MinScore = 0.0
	MaxScore = 100.0
)

func invalid(field string, value any, format string, args ...any) *failure.Record {
	return failure.Newf(failure.KindValidation, failure.Context{
		Operation:  "validate",
		Parameters: map[string]any{"field": field, "value": value},
	}, format, args...)
}

// Address requires a 0x-prefixed 20-byte hex address that is not the zero address.
func Address(addr string) (common.Address, error) {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return common.Address{}, invalid("address", addr, "address %q must be 0x-prefixed", addr)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, invalid("address", addr, "invalid address %q", addr)
	}
	a := common.HexToAddress(addr)
	if a == (common.Address{}) {
		return common.Address{}, invalid("address", addr, "zero address is not allowed")
	}
	return a, nil
}

// TokenID accepts a non-negative base-10 integer that fits in uint256.
func TokenID(id string) (*big.Int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("tokenId", id, "token id is required")
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return nil, invalid("tokenId", id, "token id %q is not an integer", id)
	}
	if n.Sign() < 0 {
		return nil, invalid("tokenId", id, "token id must not be negative")
	}
	if n.BitLen() > 256 {
		return nil, invalid("tokenId", id, "token id exceeds uint256")
	}
	return n, nil
}

// Grade accepts 1-10 in half-point steps.
func Grade(grade float64) error {
	if grade < MinGrade || grade > MaxGrade {
		return invalid("grade", grade, "grade %.1f outside [%.0f, %.0f]", grade, MinGrade, MaxGrade)
	}
	if grade*2 != float64(int(grade*2)) {
		return invalid("grade", grade, "grade %.2f must be a multiple of 0.5", grade)
	}
	return nil
}

// Score accepts a confidence score in [0, 100].
func Score(score float64) error {
	if score != score || score < MinScore || score > MaxScore {
		return invalid("score", score, "score %v outside [%.0f, %.0f]", score, MinScore, MaxScore)
	}
	return nil
}

// Price parses a positive wei amount given as a base-10 string.
func Price(wei string) (*big.Int, error) {
	wei = strings.TrimSpace(wei)
	if wei == "" {
		return nil, invalid("price", wei, "price is required")
	}
	if _, err := strconv.ParseFloat(wei, 64); err == nil && strings.ContainsAny(wei, ".eE") {
		return nil, invalid("price", wei, "price %q must be an integer amount of wei", wei)
	}
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return nil, invalid("price", wei, "price %q is not a number", wei)
	}
	if n.Sign() <= 0 {
		return nil, invalid("price", wei, "price must be positive")
	}
	return n, nil
}
