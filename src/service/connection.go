package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// IdentityListener is called synchronously whenever the connected (address, chainId)
// pair changes, before subscribers observe the new state.
type IdentityListener func(ctx context.Context, prev, next domain.ConnectionState)

type ConnectionConfig struct {
	// GasPollInterval enables the gas price poller while connected when positive
	GasPollInterval time.Duration
}

// ConnectionService is the wallet connection state machine. User actions (Connect,
// SwitchNetwork, Disconnect) are applied in order; wallet events are applied as they
// arrive and may interleave with them.
type ConnectionService struct {
	registry *NetworkRegistry
	wallets  map[domain.WalletKind]WalletProvider
	config   ConnectionConfig

	actionMu sync.Mutex

	mu       sync.RWMutex
	state    domain.ConnectionState
	wallet   WalletProvider
	lastKind domain.WalletKind
	epoch    uint64
	cancel   context.CancelFunc

	listenerMu sync.RWMutex
	listeners  []IdentityListener

	subMu         sync.Mutex
	subscribers   map[uint64]chan domain.ConnectionState
	nextSub       uint64
	lastPublished uint64
}

func NewConnectionService(registry *NetworkRegistry, config ConnectionConfig) *ConnectionService {
	return &ConnectionService{
		registry:    registry,
		wallets:     make(map[domain.WalletKind]WalletProvider),
		config:      config,
		state:       domain.DisconnectedState(),
		subscribers: make(map[uint64]chan domain.ConnectionState),
	}
}

// logger wraps the execution context with component info
func (s *ConnectionService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "connection").Logger()
	return &l
}

// RegisterWallet makes wallet available to Connect under kind
func (s *ConnectionService) RegisterWallet(kind domain.WalletKind, wallet WalletProvider) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	s.wallets[kind] = wallet
}

// OnIdentityChange registers fn to run on every identity transition
func (s *ConnectionService) OnIdentityChange(fn IdentityListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// State returns the current snapshot
func (s *ConnectionService) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Wallet returns the provider of the current connection, or nil
func (s *ConnectionService) Wallet() WalletProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet
}

// Subscribe returns a channel receiving state snapshots. Slow readers only see the
// latest one. The returned func unsubscribes and closes the channel.
func (s *ConnectionService) Subscribe() (<-chan domain.ConnectionState, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan domain.ConnectionState, 1)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

// Connect requests accounts from the wallet registered under kind and resolves its chain.
// An unregistered chain leaves the state in Error with the raw chain id kept.
func (s *ConnectionService) Connect(ctx context.Context, kind domain.WalletKind) (domain.ConnectionState, error) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	wallet := s.wallets[kind]
	epoch := s.begin(wallet)
	s.mu.Lock()
	s.lastKind = kind
	s.mu.Unlock()

	if wallet == nil {
		err := domain.ExecutionErrorf(domain.ExecutionWalletUnavailable, "wallet %q is not available", kind)
		return s.fail(ctx, epoch, kind, err)
	}

	s.update(ctx, epoch, func(domain.ConnectionState) (domain.ConnectionState, bool) {
		next := domain.DisconnectedState()
		next.Status = domain.ConnectionConnecting
		next.WalletKind = kind
		return next, true
	})
	drainEvents(wallet.Events())

	accounts, err := wallet.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = ErrNoAccounts
	}
	if err != nil {
		return s.fail(ctx, epoch, kind, domain.NewExecutionError(domain.ExecutionWalletUnavailable, err))
	}
	chainID, err := wallet.ChainID(ctx)
	if err != nil {
		return s.fail(ctx, epoch, kind, domain.NewExecutionError(domain.ExecutionWalletUnavailable, err))
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		cancel()
		return s.State(), domain.ExecutionErrorf(domain.ExecutionWalletUnavailable, "connection superseded")
	}
	s.cancel = cancel
	s.mu.Unlock()

	state, err := s.applyIdentity(ctx, epoch, accounts[0], chainID)

	go s.pump(connCtx, epoch, wallet)
	if s.config.GasPollInterval > 0 {
		go NewGasPricePoller(s.config.GasPollInterval, s.fetchGasPrice, s.applyGasPrice(epoch)).Start(connCtx)
	}

	if err != nil {
		return state, err
	}

	s.logger(ctx).Info().
		Str("wallet", string(kind)).
		Str("address", accounts[0].Hex()).
		Int64("chain_id", chainID).
		Msg("wallet connected")
	return state, nil
}

// Reconnect connects again with the wallet kind of the last connection attempt
func (s *ConnectionService) Reconnect(ctx context.Context) (domain.ConnectionState, error) {
	s.mu.RLock()
	kind := s.lastKind
	s.mu.RUnlock()
	if kind == "" {
		return s.State(), domain.ExecutionErrorf(domain.ExecutionNotConnected, "no previous wallet to reconnect")
	}
	return s.Connect(ctx, kind)
}

// Disconnect stops event handling and resets to the initial state
func (s *ConnectionService) Disconnect(ctx context.Context) domain.ConnectionState {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	s.mu.Lock()
	epoch := s.resetLocked()
	s.mu.Unlock()

	state, _ := s.update(ctx, epoch, func(domain.ConnectionState) (domain.ConnectionState, bool) {
		return domain.DisconnectedState(), true
	})
	s.logger(ctx).Info().Msg("wallet disconnected")
	return state
}

// SwitchNetwork asks the wallet to change chains, adding the chain to the wallet first
// when it does not know it. On failure the state is left unchanged.
func (s *ConnectionService) SwitchNetwork(ctx context.Context, chainID int64) (domain.ConnectionState, error) {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	network, ok := s.registry.Lookup(chainID)
	if !ok {
		return s.State(), domain.ExecutionErrorf(domain.ExecutionUnsupportedNetwork, "chain %d is not supported", chainID)
	}

	s.mu.RLock()
	wallet, epoch, current := s.wallet, s.epoch, s.state
	s.mu.RUnlock()
	if wallet == nil || current.Address == nil {
		return current, domain.ExecutionErrorf(domain.ExecutionNotConnected, "wallet is not connected")
	}

	err := wallet.SwitchChain(ctx, chainID)
	if errors.Is(err, ErrChainNotAdded) {
		s.logger(ctx).Info().Int64("chain_id", chainID).Msg("chain unknown to wallet, adding it")
		if addErr := wallet.AddChain(ctx, addChainParams(network)); addErr != nil {
			return s.State(), fmt.Errorf("failed to add chain %d: %w", chainID, addErr)
		}
		err = wallet.SwitchChain(ctx, chainID)
	}
	if err != nil {
		return s.State(), fmt.Errorf("failed to switch to chain %d: %w", chainID, err)
	}

	return s.applyIdentity(ctx, epoch, *current.Address, chainID)
}

// RefreshBalance reloads the native balance of the connected address
func (s *ConnectionService) RefreshBalance(ctx context.Context) error {
	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()
	return s.refreshBalance(ctx, epoch)
}

// begin cancels the previous connection and starts a new epoch for wallet
func (s *ConnectionService) begin(wallet WalletProvider) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	epoch := s.resetLocked()
	s.wallet = wallet
	return epoch
}

func (s *ConnectionService) resetLocked() uint64 {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wallet = nil
	s.epoch++
	return s.epoch
}

func (s *ConnectionService) fail(ctx context.Context, epoch uint64, kind domain.WalletKind, err error) (domain.ConnectionState, error) {
	state, _ := s.update(ctx, epoch, func(domain.ConnectionState) (domain.ConnectionState, bool) {
		next := domain.DisconnectedState()
		next.Status = domain.ConnectionError
		next.WalletKind = kind
		next.LastError = err.Error()
		return next, true
	})
	s.logger(ctx).Warn().Err(err).Str("wallet", string(kind)).Msg("wallet connection failed")
	return state, err
}

// applyIdentity moves to Connected for a registered chain and to Error otherwise
func (s *ConnectionService) applyIdentity(ctx context.Context, epoch uint64, address common.Address, chainID int64) (domain.ConnectionState, error) {
	network, ok := s.registry.Lookup(chainID)
	if !ok {
		err := domain.ExecutionErrorf(domain.ExecutionUnsupportedNetwork, "chain %d is not supported", chainID)
		state, _ := s.update(ctx, epoch, func(cur domain.ConnectionState) (domain.ConnectionState, bool) {
			next := cur
			next.Status = domain.ConnectionError
			next.Address = &address
			next.ChainID = &chainID
			next.Network = nil
			next.Balance = decimal.Zero
			next.GasPrice = nil
			next.LastError = err.Error()
			return next, true
		})
		s.logger(ctx).Warn().Int64("chain_id", chainID).Msg("wallet is on an unsupported chain")
		return state, err
	}

	s.update(ctx, epoch, func(cur domain.ConnectionState) (domain.ConnectionState, bool) {
		if cur.IsConnected() && *cur.Address == address && *cur.ChainID == chainID {
			return cur, false
		}
		next := cur
		next.Status = domain.ConnectionConnected
		next.Address = &address
		next.ChainID = &chainID
		next.Network = &network
		next.Balance = decimal.Zero
		next.GasPrice = nil
		next.LastError = ""
		return next, true
	})

	if err := s.refreshBalance(ctx, epoch); err != nil {
		s.logger(ctx).Warn().Err(err).Msg("failed to refresh balance")
	}
	return s.State(), nil
}

func (s *ConnectionService) refreshBalance(ctx context.Context, epoch uint64) error {
	current := s.State()
	if !current.IsConnected() {
		return nil
	}
	client, err := s.registry.Client(ctx, *current.ChainID)
	if err != nil {
		return err
	}
	balance, err := client.BalanceAt(ctx, *current.Address, nil)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}

	s.update(ctx, epoch, func(cur domain.ConnectionState) (domain.ConnectionState, bool) {
		if !cur.IsConnected() || !cur.SameIdentity(current) {
			return cur, false
		}
		next := cur
		next.Balance = decimal.NewFromBigInt(balance, -18)
		return next, true
	})
	return nil
}

func (s *ConnectionService) fetchGasPrice(ctx context.Context) (*big.Int, error) {
	current := s.State()
	if !current.IsConnected() {
		return nil, errors.New("not connected")
	}
	client, err := s.registry.Client(ctx, *current.ChainID)
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

func (s *ConnectionService) applyGasPrice(epoch uint64) func(ctx context.Context, price *big.Int) {
	return func(ctx context.Context, price *big.Int) {
		s.update(ctx, epoch, func(cur domain.ConnectionState) (domain.ConnectionState, bool) {
			if !cur.IsConnected() {
				return cur, false
			}
			next := cur
			next.GasPrice = price
			return next, true
		})
	}
}

// pump applies wallet events for the connection started at epoch
func (s *ConnectionService) pump(ctx context.Context, epoch uint64, wallet WalletProvider) {
	events := wallet.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleWalletEvent(ctx, epoch, wallet, ev)
		}
	}
}

func (s *ConnectionService) handleWalletEvent(ctx context.Context, epoch uint64, wallet WalletProvider, ev WalletEvent) {
	s.logger(ctx).Debug().
		Str("event", string(ev.Type)).
		Int("accounts", len(ev.Accounts)).
		Int64("chain_id", ev.ChainID).
		Msg("wallet event")

	switch ev.Type {
	case WalletAccountsChanged:
		if len(ev.Accounts) == 0 {
			s.mu.Lock()
			if s.epoch != epoch {
				s.mu.Unlock()
				return
			}
			next := s.resetLocked()
			s.mu.Unlock()
			s.update(ctx, next, func(domain.ConnectionState) (domain.ConnectionState, bool) {
				return domain.DisconnectedState(), true
			})
			return
		}
		current := s.State()
		var chainID int64
		if current.ChainID != nil {
			chainID = *current.ChainID
		} else {
			id, err := wallet.ChainID(ctx)
			if err != nil {
				s.logger(ctx).Warn().Err(err).Msg("failed to resolve chain after account change")
				return
			}
			chainID = id
		}
		_, _ = s.applyIdentity(ctx, epoch, ev.Accounts[0], chainID)

	case WalletChainChanged:
		current := s.State()
		if current.Address == nil {
			return
		}
		if current.ChainID != nil && *current.ChainID == ev.ChainID && current.Status != domain.ConnectionError {
			return
		}
		_, _ = s.applyIdentity(ctx, epoch, *current.Address, ev.ChainID)
	}
}

// update applies fn to the state if epoch is current. Identity listeners run before
// subscribers are notified.
func (s *ConnectionService) update(ctx context.Context, epoch uint64, fn func(cur domain.ConnectionState) (domain.ConnectionState, bool)) (domain.ConnectionState, bool) {
	s.mu.Lock()
	prev := s.state
	if epoch != s.epoch {
		s.mu.Unlock()
		return prev, false
	}
	next, changed := fn(prev)
	if !changed {
		s.mu.Unlock()
		return prev, false
	}
	next.Version = prev.Version + 1
	next.UpdatedAt = time.Now()
	s.state = next
	s.mu.Unlock()

	if identityKey(prev) != identityKey(next) {
		s.listenerMu.RLock()
		listeners := append([]IdentityListener(nil), s.listeners...)
		s.listenerMu.RUnlock()
		for _, l := range listeners {
			l(ctx, prev, next)
		}
	}
	s.publish(next)
	return next, true
}

func (s *ConnectionService) publish(state domain.ConnectionState) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if state.Version <= s.lastPublished {
		return
	}
	s.lastPublished = state.Version
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

// identityKey is empty unless connected
func identityKey(state domain.ConnectionState) string {
	if !state.IsConnected() {
		return ""
	}
	return fmt.Sprintf("%s@%d", state.Address.Hex(), *state.ChainID)
}

func drainEvents(events <-chan WalletEvent) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
