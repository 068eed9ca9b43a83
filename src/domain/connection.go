package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
)

// WalletKind names a wallet provider registered with the connection service
type WalletKind string

// ConnectionState is an immutable snapshot of the wallet connection.
// Connected always carries Address, ChainID and Network.
type ConnectionState struct {
	Status     ConnectionStatus   `json:"status"`
	WalletKind WalletKind         `json:"walletKind,omitempty"`
	Address    *common.Address    `json:"address,omitempty"`
	ChainID    *int64             `json:"chainId,omitempty"`
	Network    *NetworkDescriptor `json:"network,omitempty"`
	Balance    decimal.Decimal    `json:"balance"`
	GasPrice   *big.Int           `json:"gasPrice,omitempty"`
	LastError  string             `json:"lastError,omitempty"`
	Version    uint64             `json:"version"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// DisconnectedState is the initial state
func DisconnectedState() ConnectionState {
	return ConnectionState{Status: ConnectionDisconnected, Balance: decimal.Zero}
}

func (s ConnectionState) IsConnected() bool {
	return s.Status == ConnectionConnected && s.Address != nil && s.Network != nil
}

// SameIdentity reports whether both snapshots refer to the same address on the same chain
func (s ConnectionState) SameIdentity(other ConnectionState) bool {
	if s.Address == nil || other.Address == nil || s.ChainID == nil || other.ChainID == nil {
		return false
	}
	return *s.Address == *other.Address && *s.ChainID == *other.ChainID
}
