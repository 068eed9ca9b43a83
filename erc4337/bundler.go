package erc4337

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrChainIDMismatch is returned when an endpoint serves a different chain than requested.
var ErrChainIDMismatch = errors.New("chain id mismatch")

type GasEstimates struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit"`
}

// Apply copies the estimated limits into op, leaving fields the bundler omitted untouched
func (e *GasEstimates) Apply(op *UserOperation) {
	if e.PreVerificationGas != nil {
		op.PreVerificationGas = e.PreVerificationGas
	}
	if e.VerificationGasLimit != nil {
		op.VerificationGasLimit = e.VerificationGasLimit
	}
	if e.CallGasLimit != nil {
		op.CallGasLimit = e.CallGasLimit
	}
	if op.Paymaster == nil {
		return
	}
	if e.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = e.PaymasterVerificationGasLimit
	}
	if e.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = e.PaymasterPostOpGasLimit
	}
}

// ReceiptTransaction is the bundle transaction receipt embedded in a user operation receipt.
type ReceiptTransaction struct {
	BlockHash         common.Hash    `json:"blockHash"`
	BlockNumber       *hexutil.Big   `json:"blockNumber"`
	From              common.Address `json:"from"`
	GasUsed           *hexutil.Big   `json:"gasUsed"`
	TransactionHash   common.Hash    `json:"transactionHash"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	Logs              []*types.Log   `json:"logs"`
}

type UserOperationReceipt struct {
	UserOpHash    common.Hash         `json:"userOpHash"`
	EntryPoint    common.Address      `json:"entryPoint"`
	Sender        common.Address      `json:"sender"`
	Paymaster     common.Address      `json:"paymaster"`
	Nonce         *hexutil.Big        `json:"nonce"`
	Success       bool                `json:"success"`
	Reason        string              `json:"reason"`
	ActualGasCost *hexutil.Big        `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big        `json:"actualGasUsed"`
	Receipt       *ReceiptTransaction `json:"receipt"`
	Logs          []*types.Log        `json:"logs"`
}

// Bundler is the subset of the ERC-4337 bundler JSON-RPC API used for submission.
// GetUserOperationReceipt returns a nil receipt while the operation is still pending.
type Bundler interface {
	ChainId(ctx context.Context) (*big.Int, error)
	EstimateUserOperationGas(ctx context.Context, op *UserOperation, entryPoint common.Address) (*GasEstimates, error)
	SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error)
	GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error)
	Close()
}

type BundlerClient struct {
	client *rpc.Client
}

func DialContext(ctx context.Context, rawurl string) (Bundler, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return NewBundlerClient(c), nil
}

// DialBundler connects to rawurl and checks the bundler serves chainID.
func DialBundler(ctx context.Context, rawurl string, chainID *big.Int) (Bundler, error) {
	b, err := DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bundler: %w", err)
	}
	got, err := b.ChainId(ctx)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to get bundler chain id: %w", err)
	}
	if got.Cmp(chainID) != 0 {
		b.Close()
		return nil, fmt.Errorf("%w: bundler serves %s, want %s", ErrChainIDMismatch, got, chainID)
	}
	return b, nil
}

func NewBundlerClient(c *rpc.Client) Bundler {
	return &BundlerClient{c}
}

func (b *BundlerClient) ChainId(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	err := b.client.CallContext(ctx, &result, "eth_chainId")
	if err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (b *BundlerClient) EstimateUserOperationGas(ctx context.Context, op *UserOperation, entryPoint common.Address) (*GasEstimates, error) {
	var estimate GasEstimates
	err := b.client.CallContext(ctx, &estimate, "eth_estimateUserOperationGas", op, entryPoint)
	if err != nil {
		return nil, err
	}
	return &estimate, nil
}

func (b *BundlerClient) SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error) {
	var result common.Hash
	err := b.client.CallContext(ctx, &result, "eth_sendUserOperation", op, entryPoint)
	return result, err
}

func (b *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	err := b.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", userOpHash)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (b *BundlerClient) Close() {
	b.client.Close()
}

// IsRejection reports whether err is a definite JSON-RPC error response from the endpoint,
// as opposed to a transport failure where the request may or may not have been processed.
func IsRejection(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500
	}
	return false
}
