package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethaccount/gasless/erc4337"
	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var errReceiptPending = errors.New("receipt not available yet")

type OrchestratorConfig struct {
	// SponsorshipWindow bounds the paymaster request and is sent as the expiry duration
	SponsorshipWindow     time.Duration
	SponsorshipAttempts   uint
	SponsorshipRetryDelay time.Duration
	ReceiptTimeout        time.Duration
	ReceiptPollInterval   time.Duration
	ConfirmationTimeout   time.Duration
}

func (c *OrchestratorConfig) setDefaults() {
	if c.SponsorshipWindow <= 0 {
		c.SponsorshipWindow = 5 * time.Minute
	}
	if c.SponsorshipAttempts == 0 {
		c.SponsorshipAttempts = 2
	}
	if c.SponsorshipRetryDelay <= 0 {
		c.SponsorshipRetryDelay = 500 * time.Millisecond
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 2 * time.Minute
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = 2 * time.Second
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = c.ReceiptTimeout
	}
}

// TransactionOrchestrator runs a batch of calls through the sponsored path when a
// session is ready, and through the wallet otherwise. Sponsored failures that are known
// to have submitted nothing fall back to the direct path.
type TransactionOrchestrator struct {
	connection *ConnectionService
	accounts   *SmartAccountManager
	registry   *NetworkRegistry
	store      ExecutionStore
	recorder   ExecutionRecorder
	config     OrchestratorConfig
}

// NewTransactionOrchestrator creates the orchestrator. recorder may be nil.
func NewTransactionOrchestrator(connection *ConnectionService, accounts *SmartAccountManager, registry *NetworkRegistry, store ExecutionStore, recorder ExecutionRecorder, config OrchestratorConfig) *TransactionOrchestrator {
	config.setDefaults()
	return &TransactionOrchestrator{
		connection: connection,
		accounts:   accounts,
		registry:   registry,
		store:      store,
		recorder:   recorder,
		config:     config,
	}
}

// logger wraps the execution context with component info
func (o *TransactionOrchestrator) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "orchestrator").Logger()
	return &l
}

// executionRun carries what is known about one Execute call so far
type executionRun struct {
	actionID   string
	state      domain.ConnectionState
	calls      []domain.CallRequest
	path       domain.ExecutionPath
	account    *common.Address
	userOpHash *common.Hash
	txHash     *common.Hash
}

// Execute runs calls as one logical action. Errors are *domain.ExecutionError.
func (o *TransactionOrchestrator) Execute(ctx context.Context, calls []domain.CallRequest, opts domain.ExecuteOptions) (*domain.TransactionResult, error) {
	if len(calls) == 0 {
		return nil, domain.ExecutionErrorf(domain.ExecutionInvalidRequest, "no calls to execute")
	}
	state := o.connection.State()
	if !state.IsConnected() {
		return nil, domain.ExecutionErrorf(domain.ExecutionNotConnected, "wallet is not connected")
	}

	actionID := opts.ActionID
	if actionID == "" {
		actionID = uuid.NewString()
	}
	l := zerolog.Ctx(ctx).With().Str("action_id", actionID).Logger()
	ctx = l.WithContext(ctx)

	entry := &domain.ExecutionCache{
		ActionID: actionID,
		ChainID:  *state.ChainID,
		Status:   domain.ExecutionStatusPending,
	}
	if err := o.store.Claim(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrActionInFlight) {
			return nil, domain.NewExecutionError(domain.ExecutionDuplicateSubmission, err)
		}
		return nil, fmt.Errorf("failed to claim action: %w", err)
	}

	run := &executionRun{actionID: actionID, state: state, calls: calls}
	result, err := o.execute(ctx, run, opts)
	o.finish(ctx, run, result, err)
	return result, err
}

func (o *TransactionOrchestrator) execute(ctx context.Context, run *executionRun, opts domain.ExecuteOptions) (*domain.TransactionResult, error) {
	var fallback domain.ExecutionKind

	if !opts.ForceDirect && o.accounts.GaslessEnabled() {
		session, err := o.accounts.EnsureSession(ctx)
		if err != nil {
			fallback = domain.ExecutionSessionInitFailed
			o.logger(ctx).Info().Err(err).Msg("smart account session unavailable, using direct path")
		} else {
			result, canFallback, err := o.executeSponsored(ctx, run, session)
			if err == nil {
				return result, nil
			}
			if !canFallback {
				return nil, err
			}
			fallback, _ = domain.KindOf(err)
			o.logger(ctx).Warn().Err(err).
				Str("reason", string(fallback)).
				Msg("sponsored execution failed, falling back to direct path")
		}
	}

	result, err := o.executeDirect(ctx, run)
	if err != nil {
		return nil, err
	}
	result.FallbackReason = fallback
	return result, nil
}

// executeSponsored returns whether the failure is known to have submitted nothing,
// in which case the caller may fall back.
func (o *TransactionOrchestrator) executeSponsored(ctx context.Context, run *executionRun, session *SmartAccountSession) (*domain.TransactionResult, bool, error) {
	run.path = domain.PathSponsored
	run.account = &session.AccountAddress
	entryPoint := o.accounts.Account().EntryPoint

	if err := session.inFlight.Acquire(ctx, 1); err != nil {
		return nil, false, domain.NewExecutionError(domain.ExecutionSubmissionFailed, fmt.Errorf("failed to wait for previous user operation: %w", err))
	}
	defer session.inFlight.Release(1)
	if !o.accounts.IsCurrent(session) {
		return nil, false, domain.ExecutionErrorf(domain.ExecutionIdentityChanged, "wallet identity changed before submission")
	}

	op, err := o.buildUserOperation(ctx, session, run.calls)
	if err != nil {
		return nil, true, domain.NewExecutionError(domain.ExecutionSubmissionFailed, err)
	}

	if err := o.sponsor(ctx, session, op, entryPoint); err != nil {
		return nil, true, domain.NewExecutionError(domain.ExecutionSponsorshipRejected, err)
	}

	if !o.accounts.IsCurrent(session) {
		return nil, false, domain.ExecutionErrorf(domain.ExecutionIdentityChanged, "wallet identity changed before submission")
	}

	userOpHash, err := op.Hash(entryPoint, big.NewInt(session.ChainID))
	if err != nil {
		return nil, true, domain.NewExecutionError(domain.ExecutionSubmissionFailed, err)
	}
	wallet := o.connection.Wallet()
	if wallet == nil {
		return nil, false, domain.ExecutionErrorf(domain.ExecutionIdentityChanged, "wallet disconnected before submission")
	}
	signature, err := wallet.SignHash(ctx, userOpHash)
	if err != nil {
		return nil, true, domain.NewExecutionError(domain.ExecutionSubmissionFailed, fmt.Errorf("failed to sign user operation: %w", err))
	}
	op.Signature = signature

	if !o.accounts.IsCurrent(session) {
		return nil, false, domain.ExecutionErrorf(domain.ExecutionIdentityChanged, "wallet identity changed before submission")
	}
	sent, err := session.Bundler.SendUserOperation(ctx, op, entryPoint)
	if err != nil {
		if erc4337.IsRejection(err) {
			return nil, true, domain.NewExecutionError(domain.ExecutionSubmissionFailed, fmt.Errorf("bundler rejected user operation: %w", err))
		}
		run.userOpHash = &userOpHash
		return nil, false, domain.NewExecutionError(domain.ExecutionAmbiguousOutcome, fmt.Errorf("user operation may have been accepted: %w", err))
	}
	if sent != userOpHash {
		o.logger(ctx).Warn().
			Str("user_op_hash", userOpHash.Hex()).
			Str("bundler_hash", sent.Hex()).
			Msg("bundler returned a different user operation hash")
	}
	run.userOpHash = &sent
	o.progress(ctx, run)

	o.logger(ctx).Info().
		Str("user_op_hash", sent.Hex()).
		Str("account_address", session.AccountAddress.Hex()).
		Int64("chain_id", session.ChainID).
		Msg("user operation sent")

	receipt, err := o.waitForUserOperation(ctx, session.Bundler, sent)
	if err != nil {
		return nil, false, domain.NewExecutionError(domain.ExecutionAmbiguousOutcome, err)
	}
	if receipt.Receipt != nil {
		txHash := receipt.Receipt.TransactionHash
		run.txHash = &txHash
	}
	if !receipt.Success {
		return nil, false, domain.ExecutionErrorf(domain.ExecutionSubmissionFailed, "user operation reverted: %s", receipt.Reason)
	}
	session.markDeployed()

	result := &domain.TransactionResult{
		ActionID:       run.actionID,
		UserOpHash:     &sent,
		Sponsored:      true,
		BlockConfirmed: true,
		Path:           domain.PathSponsored,
	}
	if receipt.ActualGasUsed != nil {
		result.GasUsed = receipt.ActualGasUsed.ToInt().Uint64()
	}
	if receipt.Receipt != nil {
		result.TransactionHash = receipt.Receipt.TransactionHash
		if receipt.Receipt.BlockNumber != nil {
			result.BlockNumber = receipt.Receipt.BlockNumber.ToInt().Uint64()
		}
	}
	return result, false, nil
}

// buildUserOperation encodes calls in order into one executeBatch operation
func (o *TransactionOrchestrator) buildUserOperation(ctx context.Context, session *SmartAccountSession, calls []domain.CallRequest) (*erc4337.UserOperation, error) {
	batch := make([]erc4337.Call, len(calls))
	total := new(big.Int)
	for i, c := range calls {
		batch[i] = erc4337.Call{To: c.To, Value: c.ValueOrZero(), Data: c.Data}
		total.Add(total, batch[i].Value)
	}
	callData, err := erc4337.EncodeExecuteBatch(batch)
	if err != nil {
		return nil, err
	}

	account := o.accounts.Account()
	client, err := o.registry.Client(ctx, session.ChainID)
	if err != nil {
		return nil, err
	}
	nonce, err := erc4337.GetNonce(ctx, client, account.EntryPoint, session.AccountAddress, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tip cap: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	op := &erc4337.UserOperation{
		Sender:               session.AccountAddress,
		Nonce:                (*hexutil.Big)(nonce),
		CallData:             callData,
		MaxFeePerGas:         (*hexutil.Big)(erc4337.MaxFeePerGas(head.BaseFee, tip)),
		MaxPriorityFeePerGas: (*hexutil.Big)(tip),
		Signature:            erc4337.DummySignature,
	}
	if !session.Deployed() {
		factoryData, err := account.FactoryData(session.OwnerAddress)
		if err != nil {
			return nil, err
		}
		factory := account.Factory
		op.Factory = &factory
		op.FactoryData = factoryData
	}

	o.logger(ctx).Debug().
		Int("calls", len(calls)).
		Str("total_value", total.String()).
		Str("nonce", nonce.String()).
		Bool("deploying", op.Factory != nil).
		Msg("built user operation")
	return op, nil
}

// sponsor asks the paymaster to cover op and applies the result. When the paymaster
// leaves the gas limits out, the bundler estimates them and the paymaster is asked
// again to sign over the estimated limits.
func (o *TransactionOrchestrator) sponsor(ctx context.Context, session *SmartAccountSession, op *erc4337.UserOperation, entryPoint common.Address) error {
	sponsorCtx, cancel := context.WithTimeout(ctx, o.config.SponsorshipWindow)
	defer cancel()

	policy := erc4337.SponsorshipPolicy{
		Mode:               erc4337.SponsorshipModeSponsored,
		CalculateGasLimits: true,
		ExpiryDuration:     int64(o.config.SponsorshipWindow / time.Second),
	}
	if err := o.requestSponsorship(ctx, sponsorCtx, session, op, entryPoint, policy); err != nil {
		return err
	}
	if hasGasLimits(op) {
		return nil
	}

	estimate, err := session.Bundler.EstimateUserOperationGas(sponsorCtx, op, entryPoint)
	if err != nil {
		return fmt.Errorf("failed to estimate user operation gas: %w", err)
	}
	estimate.Apply(op)
	if !hasGasLimits(op) {
		return errors.New("sponsorship did not include gas limits")
	}
	o.logger(ctx).Debug().
		Str("call_gas_limit", op.CallGasLimit.String()).
		Str("verification_gas_limit", op.VerificationGasLimit.String()).
		Msg("gas limits estimated by bundler")

	policy.CalculateGasLimits = false
	return o.requestSponsorship(ctx, sponsorCtx, session, op, entryPoint, policy)
}

func hasGasLimits(op *erc4337.UserOperation) bool {
	return op.CallGasLimit != nil && op.VerificationGasLimit != nil && op.PreVerificationGas != nil
}

// requestSponsorship calls the paymaster, retrying transient failures, and applies the result
func (o *TransactionOrchestrator) requestSponsorship(ctx, sponsorCtx context.Context, session *SmartAccountSession, op *erc4337.UserOperation, entryPoint common.Address, policy erc4337.SponsorshipPolicy) error {
	sponsorship, err := retry.DoWithData(
		func() (*erc4337.SponsorshipResult, error) {
			return session.Paymaster.SponsorUserOperation(sponsorCtx, op, entryPoint, policy)
		},
		retry.Context(sponsorCtx),
		retry.Attempts(o.config.SponsorshipAttempts),
		retry.Delay(o.config.SponsorshipRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			o.logger(ctx).Warn().Err(err).Uint("attempt", attempt+1).Msg("sponsorship request failed")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to sponsor user operation: %w", err)
	}
	return sponsorship.Apply(op)
}

func (o *TransactionOrchestrator) waitForUserOperation(ctx context.Context, bundler erc4337.Bundler, userOpHash common.Hash) (*erc4337.UserOperationReceipt, error) {
	var receipt *erc4337.UserOperationReceipt
	err := o.poll(ctx, o.config.ReceiptTimeout, func(ctx context.Context) error {
		r, err := bundler.GetUserOperationReceipt(ctx, userOpHash)
		if err != nil {
			o.logger(ctx).Debug().Err(err).Msg("failed to get user operation receipt")
			return err
		}
		if r == nil {
			return errReceiptPending
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wait for user operation %s: %w", userOpHash.Hex(), err)
	}
	return receipt, nil
}

// executeDirect sends the single call through the wallet and waits for one confirmation.
// Once the wallet has broadcast, failing to observe a receipt is ambiguous.
func (o *TransactionOrchestrator) executeDirect(ctx context.Context, run *executionRun) (*domain.TransactionResult, error) {
	run.path = domain.PathDirect
	if len(run.calls) != 1 {
		return nil, domain.ExecutionErrorf(domain.ExecutionUnsupportedBatchInDirectMode, "direct mode sends exactly one call, got %d", len(run.calls))
	}
	wallet := o.connection.Wallet()
	if wallet == nil {
		return nil, domain.ExecutionErrorf(domain.ExecutionIdentityChanged, "wallet disconnected before submission")
	}
	if !o.connection.State().SameIdentity(run.state) {
		return nil, domain.ExecutionErrorf(domain.ExecutionIdentityChanged, "wallet identity changed before submission")
	}
	chainID, err := wallet.ChainID(ctx)
	if err != nil {
		return nil, domain.NewExecutionError(domain.ExecutionDirectSendFailed, fmt.Errorf("failed to read wallet chain: %w", err))
	}
	if chainID != *run.state.ChainID {
		return nil, domain.ExecutionErrorf(domain.ExecutionIdentityChanged, "wallet moved to chain %d before submission", chainID)
	}

	txHash, err := wallet.SendTransaction(ctx, run.calls[0])
	if err != nil {
		return nil, domain.NewExecutionError(domain.ExecutionDirectSendFailed, err)
	}
	run.txHash = &txHash
	o.progress(ctx, run)

	client, err := o.registry.Client(ctx, chainID)
	if err != nil {
		return nil, domain.NewExecutionError(domain.ExecutionAmbiguousOutcome, fmt.Errorf("transaction %s sent but cannot be confirmed: %w", txHash.Hex(), err))
	}
	var receipt *types.Receipt
	err = o.poll(ctx, o.config.ConfirmationTimeout, func(ctx context.Context) error {
		r, err := client.TransactionReceipt(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return errReceiptPending
		}
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, domain.NewExecutionError(domain.ExecutionAmbiguousOutcome, fmt.Errorf("failed to confirm transaction %s: %w", txHash.Hex(), err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, domain.ExecutionErrorf(domain.ExecutionDirectSendFailed, "transaction %s reverted", txHash.Hex())
	}

	o.logger(ctx).Info().
		Str("tx_hash", txHash.Hex()).
		Int64("chain_id", chainID).
		Uint64("gas_used", receipt.GasUsed).
		Msg("transaction confirmed")

	result := &domain.TransactionResult{
		ActionID:        run.actionID,
		TransactionHash: txHash,
		GasUsed:         receipt.GasUsed,
		BlockConfirmed:  true,
		Path:            domain.PathDirect,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result, nil
}

// poll retries fn with exponential backoff until it succeeds or timeout elapses
func (o *TransactionOrchestrator) poll(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = o.config.ReceiptPollInterval
	expBackoff.MaxInterval = 4 * o.config.ReceiptPollInterval
	expBackoff.Multiplier = 1.5
	expBackoff.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		return fn(pollCtx)
	}, backoff.WithContext(expBackoff, pollCtx))
}

// progress records hashes as soon as they are known
func (o *TransactionOrchestrator) progress(ctx context.Context, run *executionRun) {
	entry := o.cacheEntry(run, domain.ExecutionStatusPending)
	if err := o.store.Update(context.WithoutCancel(ctx), entry); err != nil {
		o.logger(ctx).Warn().Err(err).Msg("failed to update execution status")
	}
}

func (o *TransactionOrchestrator) cacheEntry(run *executionRun, status domain.ExecutionStatus) *domain.ExecutionCache {
	entry := &domain.ExecutionCache{
		ActionID: run.actionID,
		ChainID:  *run.state.ChainID,
		Status:   status,
		Path:     run.path,
	}
	if run.txHash != nil {
		entry.TransactionHash = run.txHash.Hex()
	}
	if run.userOpHash != nil {
		entry.UserOpHash = run.userOpHash.Hex()
	}
	return entry
}

// finish stores the final status and the history record
func (o *TransactionOrchestrator) finish(ctx context.Context, run *executionRun, result *domain.TransactionResult, err error) {
	ctx = context.WithoutCancel(ctx)

	status := domain.ExecutionStatusCompleted
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ExecutionAmbiguousOutcome):
		status = domain.ExecutionStatusAmbiguous
	default:
		status = domain.ExecutionStatusFailed
	}
	if result != nil {
		run.path = result.Path
		if result.TransactionHash != (common.Hash{}) {
			txHash := result.TransactionHash
			run.txHash = &txHash
		}
	}

	entry := o.cacheEntry(run, status)
	if err != nil {
		kind, _ := domain.KindOf(err)
		entry.ErrorKind = string(kind)
		entry.Error = err.Error()
	}
	if updateErr := o.store.Update(ctx, entry); updateErr != nil {
		o.logger(ctx).Error().Err(updateErr).Msg("failed to store execution status")
	}

	if o.recorder == nil {
		return
	}
	callsJSON, marshalErr := json.Marshal(run.calls)
	if marshalErr != nil {
		o.logger(ctx).Error().Err(marshalErr).Msg("failed to marshal calls")
		return
	}
	record := &domain.ExecutionRecord{
		ActionID:        run.actionID,
		OwnerAddress:    run.state.Address.Hex(),
		ChainID:         *run.state.ChainID,
		Status:          status,
		Path:            run.path,
		Calls:           callsJSON,
		TransactionHash: entry.TransactionHash,
		UserOpHash:      entry.UserOpHash,
		ErrorKind:       entry.ErrorKind,
		ErrMsg:          entry.Error,
	}
	if run.account != nil {
		record.AccountAddress = run.account.Hex()
	}
	if result != nil {
		record.GasUsed = result.GasUsed
		record.FallbackReason = string(result.FallbackReason)
	}
	if recordErr := o.recorder.Record(ctx, record); recordErr != nil {
		o.logger(ctx).Error().Err(recordErr).Msg("failed to record execution")
	}
}

// Status returns the stored status of actionID
func (o *TransactionOrchestrator) Status(ctx context.Context, actionID string) (*domain.ExecutionCache, error) {
	return o.store.Get(ctx, actionID)
}

// History lists recent executions of owner, newest first
func (o *TransactionOrchestrator) History(ctx context.Context, owner common.Address, limit int) ([]*domain.ExecutionRecord, error) {
	if o.recorder == nil {
		return nil, nil
	}
	return o.recorder.List(ctx, owner, limit)
}
