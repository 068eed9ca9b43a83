package service

import (
	"context"
	"math/big"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// GasEstimator produces display estimates for a single call
type GasEstimator struct {
	connection *ConnectionService
	accounts   *SmartAccountManager
	registry   *NetworkRegistry
}

func NewGasEstimator(connection *ConnectionService, accounts *SmartAccountManager, registry *NetworkRegistry) *GasEstimator {
	return &GasEstimator{
		connection: connection,
		accounts:   accounts,
		registry:   registry,
	}
}

// logger wraps the execution context with component info
func (e *GasEstimator) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "gas-estimator").Logger()
	return &l
}

// Estimate never fails. With a ready session and gasless enabled the cost is zero,
// otherwise it is gas limit times gas price on the connected chain, or unknown.
func (e *GasEstimator) Estimate(ctx context.Context, call domain.CallRequest) domain.GasEstimate {
	if e.accounts.GaslessEnabled() && e.accounts.IsCurrent(e.accounts.Session()) {
		return domain.GaslessEstimate()
	}

	state := e.connection.State()
	if !state.IsConnected() {
		return domain.UnknownGasEstimate()
	}
	client, err := e.registry.Client(ctx, *state.ChainID)
	if err != nil {
		e.logger(ctx).Warn().Err(err).Msg("failed to get chain client")
		return domain.UnknownGasEstimate()
	}

	to := call.To
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  *state.Address,
		To:    &to,
		Value: call.ValueOrZero(),
		Data:  call.Data,
	})
	if err != nil {
		e.logger(ctx).Warn().Err(err).Str("to", to.Hex()).Msg("failed to estimate gas")
		return domain.UnknownGasEstimate()
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		e.logger(ctx).Warn().Err(err).Msg("failed to get gas price")
		return domain.UnknownGasEstimate()
	}

	cost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), gasPrice)
	return domain.GasEstimate{
		GasLimit:      gasLimit,
		GasPrice:      gasPrice,
		GasCost:       cost,
		GasCostNative: decimal.NewFromBigInt(cost, -18),
		NativeSymbol:  state.Network.NativeSymbol,
		Known:         true,
	}
}
