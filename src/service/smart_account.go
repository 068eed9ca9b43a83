package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethaccount/gasless/erc4337"
	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// SmartAccountSession holds the bundler and paymaster handles for one (owner, chain) pair.
// It is only valid while IsCurrent reports true.
type SmartAccountSession struct {
	ChainID        int64
	OwnerAddress   common.Address
	AccountAddress common.Address
	Network        domain.NetworkDescriptor
	Bundler        erc4337.Bundler
	Paymaster      erc4337.Paymaster
	CreatedAt      time.Time

	generation uint64
	deployed   atomic.Bool
	closeOnce  sync.Once
	// inFlight admits one sponsored execution at a time, from reading the nonce
	// until the receipt arrives
	inFlight *semaphore.Weighted
}

// Deployed reports whether the account contract exists on chain
func (s *SmartAccountSession) Deployed() bool {
	return s.deployed.Load()
}

func (s *SmartAccountSession) markDeployed() {
	s.deployed.Store(true)
}

func (s *SmartAccountSession) close() {
	s.closeOnce.Do(func() {
		_ = s.inFlight.Acquire(context.Background(), 1)
		defer s.inFlight.Release(1)
		s.Bundler.Close()
		s.Paymaster.Close()
	})
}

type BundlerDialer func(ctx context.Context, rawurl string, chainID *big.Int) (erc4337.Bundler, error)

type PaymasterDialer func(ctx context.Context, rawurl string) (erc4337.Paymaster, error)

type SmartAccountConfig struct {
	Account        erc4337.AccountConfig
	GaslessEnabled bool
	InitTimeout    time.Duration
}

// SmartAccountManager owns the session of the connected identity. Sessions are torn
// down on every identity change and results of initializations that raced with a
// teardown are discarded.
type SmartAccountManager struct {
	connection    *ConnectionService
	registry      *NetworkRegistry
	config        SmartAccountConfig
	dialBundler   BundlerDialer
	dialPaymaster PaymasterDialer
	group         singleflight.Group

	mu             sync.RWMutex
	session        *SmartAccountSession
	readiness      domain.SessionReadiness
	generation     uint64
	lastError      string
	gaslessEnabled bool
}

func NewSmartAccountManager(connection *ConnectionService, registry *NetworkRegistry, config SmartAccountConfig) *SmartAccountManager {
	if config.InitTimeout <= 0 {
		config.InitTimeout = 30 * time.Second
	}
	m := &SmartAccountManager{
		connection:     connection,
		registry:       registry,
		config:         config,
		dialBundler:    erc4337.DialBundler,
		dialPaymaster:  erc4337.DialPaymaster,
		readiness:      domain.SessionUninitialized,
		gaslessEnabled: config.GaslessEnabled,
	}
	connection.OnIdentityChange(m.HandleIdentityChange)
	return m
}

// logger wraps the execution context with component info
func (m *SmartAccountManager) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "smart-account").Logger()
	return &l
}

// EnsureSession returns the Ready session of the connected identity, initializing it
// when needed. Concurrent callers share one initialization. Failures are
// SessionInitFailed errors.
func (m *SmartAccountManager) EnsureSession(ctx context.Context) (*SmartAccountSession, error) {
	state := m.connection.State()
	if !state.IsConnected() {
		return nil, domain.ExecutionErrorf(domain.ExecutionSessionInitFailed, "wallet is not connected")
	}
	if !state.Network.SupportsGasless() {
		return nil, domain.ExecutionErrorf(domain.ExecutionSessionInitFailed, "no bundler or paymaster configured for chain %d", *state.ChainID)
	}

	m.mu.RLock()
	session, gen := m.session, m.generation
	m.mu.RUnlock()
	if session != nil && session.OwnerAddress == *state.Address && session.ChainID == *state.ChainID {
		return session, nil
	}

	key := fmt.Sprintf("%d:%s:%d", *state.ChainID, state.Address.Hex(), gen)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.InitTimeout)
		defer cancel()
		return m.initialize(initCtx, state, gen)
	})

	select {
	case <-ctx.Done():
		return nil, domain.NewExecutionError(domain.ExecutionSessionInitFailed, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*SmartAccountSession), nil
	}
}

func (m *SmartAccountManager) initialize(ctx context.Context, state domain.ConnectionState, gen uint64) (*SmartAccountSession, error) {
	owner, chainID := *state.Address, *state.ChainID
	m.mu.Lock()
	if m.generation == gen {
		m.readiness = domain.SessionInitializing
	}
	m.mu.Unlock()

	m.logger(ctx).Info().
		Str("owner_address", owner.Hex()).
		Int64("chain_id", chainID).
		Msg("initializing smart account session")

	bundler, err := m.dialBundler(ctx, state.Network.BundlerURL, big.NewInt(chainID))
	if err != nil {
		return nil, m.initFailed(ctx, gen, fmt.Errorf("failed to connect bundler: %w", err))
	}
	paymaster, err := m.dialPaymaster(ctx, state.Network.PaymasterURL)
	if err != nil {
		bundler.Close()
		return nil, m.initFailed(ctx, gen, fmt.Errorf("failed to connect paymaster: %w", err))
	}

	session := &SmartAccountSession{
		ChainID:        chainID,
		OwnerAddress:   owner,
		AccountAddress: m.config.Account.Address(owner),
		Network:        *state.Network,
		Bundler:        bundler,
		Paymaster:      paymaster,
		CreatedAt:      time.Now(),
		generation:     gen,
		inFlight:       semaphore.NewWeighted(1),
	}

	client, err := m.registry.Client(ctx, chainID)
	if err != nil {
		session.close()
		return nil, m.initFailed(ctx, gen, err)
	}
	code, err := client.CodeAt(ctx, session.AccountAddress, nil)
	if err != nil {
		session.close()
		return nil, m.initFailed(ctx, gen, fmt.Errorf("failed to probe account code: %w", err))
	}
	session.deployed.Store(len(code) > 0)

	m.mu.Lock()
	current := m.connection.State()
	if m.generation != gen || !current.IsConnected() || !current.SameIdentity(state) {
		m.mu.Unlock()
		session.close()
		m.logger(ctx).Info().
			Str("owner_address", owner.Hex()).
			Int64("chain_id", chainID).
			Msg("discarding stale smart account session")
		return nil, domain.ExecutionErrorf(domain.ExecutionSessionInitFailed, "identity changed during session initialization")
	}
	previous := m.session
	m.session = session
	m.readiness = domain.SessionReady
	m.lastError = ""
	m.mu.Unlock()

	if previous != nil {
		go previous.close()
	}

	m.logger(ctx).Info().
		Str("owner_address", owner.Hex()).
		Str("account_address", session.AccountAddress.Hex()).
		Int64("chain_id", chainID).
		Bool("deployed", session.Deployed()).
		Msg("smart account session ready")
	return session, nil
}

func (m *SmartAccountManager) initFailed(ctx context.Context, gen uint64, err error) error {
	m.mu.Lock()
	if m.generation == gen {
		m.readiness = domain.SessionFailed
		m.lastError = err.Error()
	}
	m.mu.Unlock()

	m.logger(ctx).Warn().Err(err).Msg("smart account session initialization failed")
	return domain.NewExecutionError(domain.ExecutionSessionInitFailed, err)
}

// Invalidate drops the current session. In-flight initializations will be discarded.
func (m *SmartAccountManager) Invalidate(ctx context.Context, reason string) {
	m.mu.Lock()
	m.generation++
	previous := m.session
	m.session = nil
	m.readiness = domain.SessionUninitialized
	m.lastError = ""
	m.mu.Unlock()

	if previous != nil {
		m.logger(ctx).Info().
			Str("account_address", previous.AccountAddress.Hex()).
			Str("reason", reason).
			Msg("smart account session invalidated")
		go previous.close()
	}
}

// HandleIdentityChange is registered as a ConnectionService identity listener
func (m *SmartAccountManager) HandleIdentityChange(ctx context.Context, prev, next domain.ConnectionState) {
	m.Invalidate(ctx, "identity changed")
}

// Session returns the Ready session or nil
func (m *SmartAccountManager) Session() *SmartAccountSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// IsCurrent reports whether session still belongs to the connected identity
func (m *SmartAccountManager) IsCurrent(session *SmartAccountSession) bool {
	if session == nil {
		return false
	}
	m.mu.RLock()
	current := m.session == session && m.generation == session.generation
	m.mu.RUnlock()
	if !current {
		return false
	}
	state := m.connection.State()
	return state.IsConnected() && *state.Address == session.OwnerAddress && *state.ChainID == session.ChainID
}

func (m *SmartAccountManager) Readiness() domain.SessionReadiness {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readiness
}

func (m *SmartAccountManager) Snapshot() domain.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := domain.SessionSnapshot{
		Readiness:      m.readiness,
		GaslessEnabled: m.gaslessEnabled,
		LastError:      m.lastError,
	}
	if s := m.session; s != nil {
		chainID, owner, account := s.ChainID, s.OwnerAddress, s.AccountAddress
		snapshot.ChainID = &chainID
		snapshot.OwnerAddress = &owner
		snapshot.AccountAddress = &account
		snapshot.Deployed = s.Deployed()
	}
	return snapshot
}

// Account returns the factory configuration used to derive account addresses
func (m *SmartAccountManager) Account() erc4337.AccountConfig {
	return m.config.Account
}

func (m *SmartAccountManager) SetGaslessEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gaslessEnabled = enabled
}

func (m *SmartAccountManager) GaslessEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gaslessEnabled
}

// GetSponsorshipBalance reads the paymaster budget. It never fails, an unreadable
// balance is reported as unknown.
func (m *SmartAccountManager) GetSponsorshipBalance(ctx context.Context) domain.SponsorshipBalance {
	session := m.Session()
	if session == nil {
		return domain.UnknownSponsorshipBalance()
	}
	balance, err := session.Paymaster.SponsorshipBalance(ctx)
	if err != nil || balance == nil {
		m.logger(ctx).Warn().Err(err).Msg("failed to get sponsorship balance")
		return domain.UnknownSponsorshipBalance()
	}
	return domain.NewSponsorshipBalance(balance)
}
