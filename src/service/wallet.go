package service

import (
	"context"
	"errors"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrChainNotAdded is the wallet's "unrecognized chain" answer (EIP-3085 code 4902)
	ErrChainNotAdded = errors.New("chain has not been added to the wallet")
	// ErrUserRejected is the wallet's "user rejected the request" answer (EIP-1193 code 4001)
	ErrUserRejected = errors.New("user rejected the request")
	ErrNoAccounts   = errors.New("wallet returned no accounts")
)

type WalletEventType string

const (
	WalletAccountsChanged WalletEventType = "accountsChanged"
	WalletChainChanged    WalletEventType = "chainChanged"
)

// WalletEvent is an unsolicited notification from the wallet
type WalletEvent struct {
	Type     WalletEventType
	Accounts []common.Address
	ChainID  int64
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainParams mirrors wallet_addEthereumChain
type AddChainParams struct {
	ChainID           int64          `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

func addChainParams(n domain.NetworkDescriptor) AddChainParams {
	params := AddChainParams{
		ChainID:   n.ChainID,
		ChainName: n.DisplayName,
		RPCURLs:   []string{n.RPCURL},
		NativeCurrency: NativeCurrency{
			Name:     n.NativeSymbol,
			Symbol:   n.NativeSymbol,
			Decimals: 18,
		},
	}
	if n.ExplorerURL != "" {
		params.BlockExplorerURLs = []string{n.ExplorerURL}
	}
	return params
}

// WalletProvider is the user's signer. SignHash signs hash with the personal_sign
// prefix and returns a 65 byte signature with v in {27, 28}.
type WalletProvider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, params AddChainParams) error
	SendTransaction(ctx context.Context, call domain.CallRequest) (common.Hash, error)
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
	Events() <-chan WalletEvent
}
