package service

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethaccount/gasless/erc4337"
	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// KeyWalletKind is the wallet kind the key wallet is registered under
const KeyWalletKind domain.WalletKind = "local"

// KeyWallet is a WalletProvider backed by a local private key. It keeps its own view
// of the selected chain and the chains it knows about, like a browser wallet would.
type KeyWallet struct {
	registry *NetworkRegistry
	events   chan WalletEvent

	mu         sync.Mutex
	privateKey *ecdsa.PrivateKey
	chainID    int64
	known      map[int64]bool
	locked     bool
}

// NewKeyWallet creates a wallet for privateKeyHex selected on chainID.
// Only chainID is known initially, others must go through AddChain.
func NewKeyWallet(registry *NetworkRegistry, privateKeyHex string, chainID int64) (*KeyWallet, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &KeyWallet{
		registry:   registry,
		events:     make(chan WalletEvent, 16),
		privateKey: privateKey,
		chainID:    chainID,
		known:      map[int64]bool{chainID: true},
	}, nil
}

// logger wraps the execution context with component info
func (w *KeyWallet) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "key-wallet").Logger()
	return &l
}

func (w *KeyWallet) Address() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return crypto.PubkeyToAddress(w.privateKey.PublicKey)
}

func (w *KeyWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locked {
		return nil, nil
	}
	return []common.Address{crypto.PubkeyToAddress(w.privateKey.PublicKey)}, nil
}

func (w *KeyWallet) ChainID(ctx context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

func (w *KeyWallet) SwitchChain(ctx context.Context, chainID int64) error {
	w.mu.Lock()
	if !w.known[chainID] {
		w.mu.Unlock()
		return ErrChainNotAdded
	}
	changed := w.chainID != chainID
	w.chainID = chainID
	w.mu.Unlock()

	if changed {
		w.emit(ctx, WalletEvent{Type: WalletChainChanged, ChainID: chainID})
	}
	return nil
}

func (w *KeyWallet) AddChain(ctx context.Context, params AddChainParams) error {
	if params.ChainID == 0 || len(params.RPCURLs) == 0 {
		return fmt.Errorf("invalid chain parameters")
	}
	w.mu.Lock()
	w.known[params.ChainID] = true
	w.mu.Unlock()

	w.logger(ctx).Info().
		Int64("chain_id", params.ChainID).
		Str("chain_name", params.ChainName).
		Msg("chain added to wallet")
	return nil
}

// SwitchAccount replaces the signing key and notifies listeners
func (w *KeyWallet) SwitchAccount(ctx context.Context, privateKeyHex string) error {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	w.mu.Lock()
	w.privateKey = privateKey
	w.locked = false
	w.mu.Unlock()

	w.emit(ctx, WalletEvent{Type: WalletAccountsChanged, Accounts: []common.Address{crypto.PubkeyToAddress(privateKey.PublicKey)}})
	return nil
}

// Lock hides the account, which listeners see as an empty account list
func (w *KeyWallet) Lock(ctx context.Context) {
	w.mu.Lock()
	w.locked = true
	w.mu.Unlock()

	w.emit(ctx, WalletEvent{Type: WalletAccountsChanged})
}

func (w *KeyWallet) Events() <-chan WalletEvent {
	return w.events
}

func (w *KeyWallet) emit(ctx context.Context, ev WalletEvent) {
	select {
	case w.events <- ev:
	default:
		w.logger(ctx).Warn().Str("event", string(ev.Type)).Msg("wallet event dropped, no listener")
	}
}

func (w *KeyWallet) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	w.mu.Lock()
	key, locked := w.privateKey, w.locked
	w.mu.Unlock()
	if locked {
		return nil, ErrUserRejected
	}

	sig, err := crypto.Sign(erc4337.PersonalSignHash(hash.Bytes()).Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SendTransaction signs and broadcasts call as a dynamic fee transaction on the selected chain
func (w *KeyWallet) SendTransaction(ctx context.Context, call domain.CallRequest) (common.Hash, error) {
	w.mu.Lock()
	key, chainID, locked := w.privateKey, w.chainID, w.locked
	w.mu.Unlock()
	if locked {
		return common.Hash{}, ErrUserRejected
	}

	client, err := w.registry.Client(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get tip cap: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get latest header: %w", err)
	}
	to := call.To
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: call.ValueOrZero(),
		Data:  call.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: erc4337.MaxFeePerGas(head.BaseFee, tip),
		Gas:       gas,
		To:        &to,
		Value:     call.ValueOrZero(),
		Data:      call.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.logger(ctx).Info().
		Str("tx_hash", signed.Hash().Hex()).
		Int64("chain_id", chainID).
		Uint64("nonce", nonce).
		Msg("transaction sent")

	return signed.Hash(), nil
}
