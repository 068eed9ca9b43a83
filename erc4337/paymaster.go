package erc4337

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const SponsorshipModeSponsored = "SPONSORED"

// SponsorshipPolicy is the context object passed with pm_sponsorUserOperation.
type SponsorshipPolicy struct {
	Mode               string `json:"mode"`
	CalculateGasLimits bool   `json:"calculateGasLimits"`
	ExpiryDuration     int64  `json:"expiryDuration,omitempty"` // seconds
}

// SponsorshipResult is the paymaster's answer. Quantities arrive as hex strings and are
// optional except for the paymaster fields themselves.
type SponsorshipResult struct {
	Paymaster                     common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes  `json:"paymasterData"`
	PaymasterVerificationGasLimit string         `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       string         `json:"paymasterPostOpGasLimit,omitempty"`
	CallGasLimit                  string         `json:"callGasLimit,omitempty"`
	VerificationGasLimit          string         `json:"verificationGasLimit,omitempty"`
	PreVerificationGas            string         `json:"preVerificationGas,omitempty"`
	MaxFeePerGas                  string         `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas          string         `json:"maxPriorityFeePerGas,omitempty"`
}

// Apply copies the paymaster fields and any returned gas values onto op.
func (r *SponsorshipResult) Apply(op *UserOperation) error {
	if r.Paymaster == (common.Address{}) {
		return fmt.Errorf("paymaster address missing from sponsorship")
	}
	paymaster := r.Paymaster
	op.Paymaster = &paymaster
	op.PaymasterData = r.PaymasterData

	fields := []struct {
		name  string
		text  string
		value **hexutil.Big
	}{
		{"paymasterVerificationGasLimit", r.PaymasterVerificationGasLimit, &op.PaymasterVerificationGasLimit},
		{"paymasterPostOpGasLimit", r.PaymasterPostOpGasLimit, &op.PaymasterPostOpGasLimit},
		{"callGasLimit", r.CallGasLimit, &op.CallGasLimit},
		{"verificationGasLimit", r.VerificationGasLimit, &op.VerificationGasLimit},
		{"preVerificationGas", r.PreVerificationGas, &op.PreVerificationGas},
		{"maxFeePerGas", r.MaxFeePerGas, &op.MaxFeePerGas},
		{"maxPriorityFeePerGas", r.MaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
	}
	for _, f := range fields {
		if f.text == "" {
			continue
		}
		v, err := parseQuantity(f.text)
		if err != nil {
			return fmt.Errorf("invalid %s in sponsorship: %w", f.name, err)
		}
		*f.value = (*hexutil.Big)(v)
	}
	return nil
}

// Paymaster signs sponsorship for user operations.
type Paymaster interface {
	SponsorUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address, policy SponsorshipPolicy) (*SponsorshipResult, error)
	SponsorshipBalance(ctx context.Context) (*big.Int, error)
	Close()
}

type PaymasterClient struct {
	client *rpc.Client
}

func DialPaymaster(ctx context.Context, rawurl string) (Paymaster, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial paymaster: %w", err)
	}
	return NewPaymasterClient(c), nil
}

func NewPaymasterClient(c *rpc.Client) Paymaster {
	return &PaymasterClient{c}
}

func (p *PaymasterClient) SponsorUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address, policy SponsorshipPolicy) (*SponsorshipResult, error) {
	var result SponsorshipResult
	err := p.client.CallContext(ctx, &result, "pm_sponsorUserOperation", op, entryPoint, policy)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SponsorshipBalance returns the remaining sponsorship budget in wei.
func (p *PaymasterClient) SponsorshipBalance(ctx context.Context) (*big.Int, error) {
	var result string
	if err := p.client.CallContext(ctx, &result, "pm_getSponsorshipBalance"); err != nil {
		return nil, err
	}
	return parseQuantity(result)
}

func (p *PaymasterClient) Close() {
	p.client.Close()
}
