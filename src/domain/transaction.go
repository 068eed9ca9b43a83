package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// CallRequest is a single contract call. A nil Value is zero.
type CallRequest struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value,omitempty"`
}

func (c CallRequest) ValueOrZero() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value.ToInt()
}

// ExecuteOptions controls a single Execute invocation
type ExecuteOptions struct {
	// ForceDirect skips the sponsored path
	ForceDirect bool
	// ActionID identifies the logical user action; at most one submission runs per id
	ActionID string
}

type ExecutionPath string

const (
	PathSponsored ExecutionPath = "sponsored"
	PathDirect    ExecutionPath = "direct"
)

// TransactionResult is the outcome of a confirmed execution
type TransactionResult struct {
	ActionID        string        `json:"actionId"`
	TransactionHash common.Hash   `json:"transactionHash"`
	UserOpHash      *common.Hash  `json:"userOpHash,omitempty"`
	GasUsed         uint64        `json:"gasUsed"`
	Sponsored       bool          `json:"sponsored"`
	BlockConfirmed  bool          `json:"blockConfirmed"`
	BlockNumber     uint64        `json:"blockNumber,omitempty"`
	Path            ExecutionPath `json:"path"`
	// FallbackReason is set when the sponsored path was attempted and abandoned
	FallbackReason ExecutionKind `json:"fallbackReason,omitempty"`
}

// GasEstimate is a display estimate for a single call. Known is false when it could not be computed.
type GasEstimate struct {
	GasLimit      uint64          `json:"gasLimit"`
	GasPrice      *big.Int        `json:"gasPrice"`
	GasCost       *big.Int        `json:"gasCost"`
	GasCostNative decimal.Decimal `json:"gasCostNative"`
	NativeSymbol  string          `json:"nativeSymbol,omitempty"`
	IsGasless     bool            `json:"isGasless"`
	Known         bool            `json:"known"`
}

func GaslessEstimate() GasEstimate {
	return GasEstimate{
		GasPrice:      new(big.Int),
		GasCost:       new(big.Int),
		GasCostNative: decimal.Zero,
		IsGasless:     true,
		Known:         true,
	}
}

func UnknownGasEstimate() GasEstimate {
	return GasEstimate{GasCostNative: decimal.Zero}
}
