package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SessionReadiness is the lifecycle of the smart account session for the current identity
type SessionReadiness string

const (
	SessionUninitialized SessionReadiness = "uninitialized"
	SessionInitializing  SessionReadiness = "initializing"
	SessionReady         SessionReadiness = "ready"
	SessionFailed        SessionReadiness = "failed"
)

// SessionSnapshot describes the smart account session for API consumers
type SessionSnapshot struct {
	Readiness      SessionReadiness `json:"readiness"`
	GaslessEnabled bool             `json:"gaslessEnabled"`
	ChainID        *int64           `json:"chainId,omitempty"`
	OwnerAddress   *common.Address  `json:"ownerAddress,omitempty"`
	AccountAddress *common.Address  `json:"accountAddress,omitempty"`
	Deployed       bool             `json:"deployed"`
	LastError      string           `json:"lastError,omitempty"`
}

// SponsorshipBalance is the paymaster budget. Known is false when it could not be read.
type SponsorshipBalance struct {
	Known   bool            `json:"known"`
	Wei     *big.Int        `json:"wei,omitempty"`
	Balance decimal.Decimal `json:"balance"`
}

func NewSponsorshipBalance(wei *big.Int) SponsorshipBalance {
	return SponsorshipBalance{
		Known:   true,
		Wei:     wei,
		Balance: decimal.NewFromBigInt(wei, -18),
	}
}

func UnknownSponsorshipBalance() SponsorshipBalance {
	return SponsorshipBalance{Balance: decimal.Zero}
}
