package app

import (
	"context"
	"fmt"

	"github.com/ethaccount/gasless/erc4337"
	"github.com/ethaccount/gasless/src/service"
	"github.com/rs/zerolog"
)

// Services is the orchestration graph around the local key wallet
type Services struct {
	Registry     *service.NetworkRegistry
	Wallet       *service.KeyWallet
	Connection   *service.ConnectionService
	Accounts     *service.SmartAccountManager
	Orchestrator *service.TransactionOrchestrator
	Estimator    *service.GasEstimator
	Swaps        *service.SwapQuoteClient
}

// NewServices wires the services from config. recorder may be nil.
func NewServices(ctx context.Context, config AppConfig, store service.ExecutionStore, recorder service.ExecutionRecorder) (*Services, error) {
	logger := zerolog.Ctx(ctx).With().Str("function", "NewServices").Logger()

	registry := service.NewNetworkRegistry(service.BuildNetworks(service.NetworkConfig{
		RPCURLs:              config.RPCURLs(),
		BundlerURLTemplate:   *config.BundlerURLTemplate,
		PaymasterURLTemplate: *config.PaymasterURLTemplate,
		APIKey:               *config.AAAPIKey,
	}))

	wallet, err := service.NewKeyWallet(registry, *config.PrivateKey, *config.DefaultChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create key wallet: %w", err)
	}

	connection := service.NewConnectionService(registry, service.ConnectionConfig{
		GasPollInterval: *config.GasPollInterval,
	})
	connection.RegisterWallet(service.KeyWalletKind, wallet)

	accountConfig := erc4337.AccountConfig{
		EntryPoint: erc4337.EntryPointV07,
		Index:      config.AccountSaltIndex,
	}
	if config.AccountFactory != nil {
		accountConfig.Factory = *config.AccountFactory
		accountConfig.InitCodeHash = *config.AccountInitCodeHash
	}
	if !config.GaslessConfigured() {
		logger.Warn().Msg("Account factory or AA endpoints not configured, gasless execution disabled")
	}
	accounts := service.NewSmartAccountManager(connection, registry, service.SmartAccountConfig{
		Account:        accountConfig,
		GaslessEnabled: config.GaslessConfigured(),
	})

	orchestrator := service.NewTransactionOrchestrator(connection, accounts, registry, store, recorder, service.OrchestratorConfig{
		SponsorshipWindow: *config.SponsorshipWindow,
		ReceiptTimeout:    *config.ReceiptTimeout,
	})

	return &Services{
		Registry:     registry,
		Wallet:       wallet,
		Connection:   connection,
		Accounts:     accounts,
		Orchestrator: orchestrator,
		Estimator:    service.NewGasEstimator(connection, accounts, registry),
		Swaps: service.NewSwapQuoteClient(service.SwapConfig{
			BaseURL:    *config.SwapAPIBase,
			APIKey:     *config.SwapAPIKey,
			MaxRetries: 3,
		}),
	}, nil
}

// ConnectWallet connects the local key wallet. A failure leaves the connection in
// Error and can be retried.
func (s *Services) ConnectWallet(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("function", "ConnectWallet").Logger()

	state, err := s.Connection.Connect(ctx, service.KeyWalletKind)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect key wallet")
		return err
	}
	logger.Info().
		Str("owner_address", state.Address.Hex()).
		Int64("chain_id", *state.ChainID).
		Str("balance", state.Balance.String()).
		Msg("Key wallet connected")
	return nil
}

// Close disconnects the wallet and releases sessions and RPC clients
func (s *Services) Close(ctx context.Context) {
	s.Connection.Disconnect(ctx)
	s.Accounts.Invalidate(ctx, "shutdown")
	s.Registry.Close()
}
