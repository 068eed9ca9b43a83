package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethaccount/gasless/erc4337"
	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	tokenA     = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	tokenB     = common.HexToAddress("0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14")
	paymasterA = common.HexToAddress("0x0000000000325602a77416A16136FDafd04b299f")
	userOpHash = common.HexToHash("0x6d1b8a3b3c5f6c1a6c0e0a1b1c3d5e7f9a2b4c6d8e0f1a3b5c7d9e1f2a4b6c8d")
	bundleTx   = common.HexToHash("0x9f2a6f7e0c3e1b5d4a8c2e6f0b1d3a5c7e9f1b3d5a7c9e1f3b5d7a9c1e3f5b7d")
	directTx   = common.HexToHash("0x2b4c6d8e0f1a3b5c7d9e1f2a4b6c8d6d1b8a3b3c5f6c1a6c0e0a1b1c3d5e7f9a")
)

type orchestratorFixture struct {
	*sessionFixture
	store        *MemoryExecutionStore
	orchestrator *TransactionOrchestrator
}

func newOrchestratorFixture(t *testing.T, chainID int64) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		sessionFixture: newSessionFixture(t),
		store:          NewMemoryExecutionStore(),
	}
	f.orchestrator = NewTransactionOrchestrator(f.conn, f.manager, f.registry, f.store, f.store, OrchestratorConfig{
		SponsorshipRetryDelay: time.Millisecond,
		ReceiptTimeout:        200 * time.Millisecond,
		ReceiptPollInterval:   5 * time.Millisecond,
	})
	f.connect(t, ownerA, chainID)
	return f
}

func transferCall(to common.Address) domain.CallRequest {
	return domain.CallRequest{
		To:   to,
		Data: hexutil.Bytes{0xa9, 0x05, 0x9c, 0xbb},
	}
}

func (f *orchestratorFixture) expectSponsorship() *mock.Call {
	return f.paymaster.On("SponsorUserOperation", mock.Anything, mock.Anything, erc4337.EntryPointV07, mock.Anything).
		Return(&erc4337.SponsorshipResult{
			Paymaster:            paymasterA,
			PaymasterData:        hexutil.Bytes{0x01},
			CallGasLimit:         "0x30d40",
			VerificationGasLimit: "0x61a80",
			PreVerificationGas:   "0xc350",
		}, nil)
}

func (f *orchestratorFixture) expectSignature() {
	f.wallet.On("SignHash", mock.Anything, mock.Anything).Return(make([]byte, 65), nil)
}

func (f *orchestratorFixture) expectDirectSend(call domain.CallRequest, status uint64) {
	f.wallet.On("SendTransaction", mock.Anything, call).Return(directTx, nil).Once()
	f.chains[sepoliaChainID].setReceipt(directTx, &types.Receipt{
		Status:      status,
		GasUsed:     46000,
		BlockNumber: big.NewInt(101),
	})
}

func successfulReceipt() *erc4337.UserOperationReceipt {
	return &erc4337.UserOperationReceipt{
		UserOpHash:    userOpHash,
		Success:       true,
		ActualGasUsed: (*hexutil.Big)(big.NewInt(180000)),
		Receipt: &erc4337.ReceiptTransaction{
			TransactionHash: bundleTx,
			BlockNumber:     (*hexutil.Big)(big.NewInt(102)),
		},
	}
}

func TestTransactionOrchestrator_Sponsored(t *testing.T) {
	ctx := context.Background()

	t.Run("batch is sent as one user operation", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.expectSponsorship().Once()
		f.expectSignature()

		var sentOp *erc4337.UserOperation
		f.bundler.On("SendUserOperation", mock.Anything, mock.Anything, erc4337.EntryPointV07).
			Run(func(args mock.Arguments) { sentOp = args.Get(1).(*erc4337.UserOperation) }).
			Return(userOpHash, nil).Once()
		f.bundler.On("GetUserOperationReceipt", mock.Anything, userOpHash).Return(nil, nil).Once()
		f.bundler.On("GetUserOperationReceipt", mock.Anything, userOpHash).Return(successfulReceipt(), nil)

		calls := []domain.CallRequest{transferCall(tokenA), transferCall(tokenB)}
		result, err := f.orchestrator.Execute(ctx, calls, domain.ExecuteOptions{ActionID: "swap-1"})
		require.NoError(t, err)

		assert.True(t, result.Sponsored)
		assert.True(t, result.BlockConfirmed)
		assert.Equal(t, domain.PathSponsored, result.Path)
		assert.Equal(t, bundleTx, result.TransactionHash)
		assert.Equal(t, userOpHash, *result.UserOpHash)
		assert.Equal(t, uint64(180000), result.GasUsed)
		assert.Equal(t, uint64(102), result.BlockNumber)
		assert.Empty(t, result.FallbackReason)

		require.NotNil(t, sentOp)
		assert.Equal(t, testAccountConfig.Address(ownerA), sentOp.Sender)
		assert.Equal(t, paymasterA, *sentOp.Paymaster)
		assert.Len(t, sentOp.Signature, 65)
		require.NotNil(t, sentOp.Factory, "undeployed account carries factory data")
		batch, err := erc4337.DecodeExecuteBatch(sentOp.CallData)
		require.NoError(t, err)
		require.Len(t, batch, 2)
		assert.Equal(t, tokenA, batch[0].To)
		assert.Equal(t, tokenB, batch[1].To)

		assert.True(t, f.manager.Session().Deployed())
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)

		status, err := f.orchestrator.Status(ctx, "swap-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusCompleted, status.Status)
		assert.Equal(t, bundleTx.Hex(), status.TransactionHash)
		assert.Equal(t, userOpHash.Hex(), status.UserOpHash)

		history, err := f.orchestrator.History(ctx, ownerA, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.PathSponsored, history[0].Path)
		assert.Equal(t, testAccountConfig.Address(ownerA).Hex(), history[0].AccountAddress)
		recorded, err := history[0].GetCalls()
		require.NoError(t, err)
		assert.Equal(t, calls, recorded)
	})

	t.Run("sponsorship rejected falls back to direct", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.paymaster.On("SponsorUserOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &rpcError{code: -32602, msg: "policy rejected"})
		call := transferCall(tokenA)
		f.expectDirectSend(call, types.ReceiptStatusSuccessful)

		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{})
		require.NoError(t, err)

		assert.False(t, result.Sponsored)
		assert.Equal(t, domain.PathDirect, result.Path)
		assert.Equal(t, domain.ExecutionSponsorshipRejected, result.FallbackReason)
		assert.Equal(t, directTx, result.TransactionHash)
		assert.Equal(t, uint64(46000), result.GasUsed)
		f.paymaster.AssertNumberOfCalls(t, "SponsorUserOperation", 2)
		f.bundler.AssertNotCalled(t, "SendUserOperation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejected batch cannot fall back", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.paymaster.On("SponsorUserOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("paymaster unavailable"))

		calls := []domain.CallRequest{transferCall(tokenA), transferCall(tokenB)}
		_, err := f.orchestrator.Execute(ctx, calls, domain.ExecuteOptions{ActionID: "batch-1"})
		assert.True(t, domain.IsKind(err, domain.ExecutionUnsupportedBatchInDirectMode))
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)

		status, err := f.orchestrator.Status(ctx, "batch-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
		assert.Equal(t, string(domain.ExecutionUnsupportedBatchInDirectMode), status.ErrorKind)
	})

	t.Run("bundler rejection falls back to direct", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.expectSponsorship()
		f.expectSignature()
		f.bundler.On("SendUserOperation", mock.Anything, mock.Anything, mock.Anything).
			Return(common.Hash{}, &rpcError{code: -32500, msg: "AA21 didn't pay prefund"}).Once()
		call := transferCall(tokenA)
		f.expectDirectSend(call, types.ReceiptStatusSuccessful)

		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, domain.PathDirect, result.Path)
		assert.Equal(t, domain.ExecutionSubmissionFailed, result.FallbackReason)
	})

	t.Run("transport failure on submit is ambiguous", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.expectSponsorship()
		f.expectSignature()
		f.bundler.On("SendUserOperation", mock.Anything, mock.Anything, mock.Anything).
			Return(common.Hash{}, errors.New("read: connection reset by peer")).Once()

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{ActionID: "amb-1"})
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.ExecutionAmbiguousOutcome))
		assert.ErrorIs(t, err, &domain.ExecutionError{Kind: domain.ExecutionAmbiguousOutcome})
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)

		status, err := f.orchestrator.Status(ctx, "amb-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusAmbiguous, status.Status)
		assert.NotEmpty(t, status.UserOpHash)

		_, err = f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{ActionID: "amb-1"})
		assert.True(t, domain.IsKind(err, domain.ExecutionDuplicateSubmission))
	})

	t.Run("receipt timeout is ambiguous", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.expectSponsorship()
		f.expectSignature()
		f.bundler.On("SendUserOperation", mock.Anything, mock.Anything, mock.Anything).Return(userOpHash, nil).Once()
		f.bundler.On("GetUserOperationReceipt", mock.Anything, userOpHash).Return(nil, nil)

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{})
		assert.True(t, domain.IsKind(err, domain.ExecutionAmbiguousOutcome))
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
	})

	t.Run("reverted user operation fails without fallback", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.expectSponsorship()
		f.expectSignature()
		f.bundler.On("SendUserOperation", mock.Anything, mock.Anything, mock.Anything).Return(userOpHash, nil).Once()
		reverted := successfulReceipt()
		reverted.Success = false
		reverted.Reason = "0x08c379a0"
		f.bundler.On("GetUserOperationReceipt", mock.Anything, userOpHash).Return(reverted, nil)

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{ActionID: "rev-1"})
		assert.True(t, domain.IsKind(err, domain.ExecutionSubmissionFailed))
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)

		status, err := f.orchestrator.Status(ctx, "rev-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
		assert.Equal(t, bundleTx.Hex(), status.TransactionHash)
	})

	t.Run("identity change before submission aborts", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.paymaster.On("SponsorUserOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				f.wallet.events <- WalletEvent{Type: WalletAccountsChanged, Accounts: []common.Address{ownerB}}
				require.Eventually(t, func() bool { return f.manager.Session() == nil }, time.Second, time.Millisecond)
			}).
			Return(&erc4337.SponsorshipResult{
				Paymaster:            paymasterA,
				CallGasLimit:         "0x30d40",
				VerificationGasLimit: "0x61a80",
				PreVerificationGas:   "0xc350",
			}, nil).Once()

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{})
		assert.True(t, domain.IsKind(err, domain.ExecutionIdentityChanged))
		f.wallet.AssertNotCalled(t, "SignHash", mock.Anything, mock.Anything)
		f.bundler.AssertNotCalled(t, "SendUserOperation", mock.Anything, mock.Anything, mock.Anything)
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
	})

	t.Run("concurrent executions on one session do not overlap", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.expectSponsorship()
		f.expectSignature()
		_, err := f.manager.EnsureSession(ctx)
		require.NoError(t, err)

		var inFlight, maxInFlight atomic.Int32
		f.bundler.On("SendUserOperation", mock.Anything, mock.Anything, erc4337.EntryPointV07).
			Run(func(mock.Arguments) {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
			}).
			Return(userOpHash, nil)
		f.bundler.On("GetUserOperationReceipt", mock.Anything, userOpHash).
			Run(func(mock.Arguments) { inFlight.Add(-1) }).
			Return(successfulReceipt(), nil)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range []string{"a1", "a2"} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, errs[i] = f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{ActionID: id})
			}(i, id)
		}
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, int32(1), maxInFlight.Load())
		f.bundler.AssertNumberOfCalls(t, "SendUserOperation", 2)
	})

	t.Run("chain change during sponsorship blocks the fallback", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.paymaster.On("SponsorUserOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				f.wallet.events <- WalletEvent{Type: WalletChainChanged, ChainID: baseChainID}
				require.Eventually(t, func() bool {
					st := f.conn.State()
					return st.ChainID != nil && *st.ChainID == baseChainID
				}, time.Second, time.Millisecond)
			}).
			Return(nil, errors.New("paymaster unavailable"))

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{ActionID: "moved-1"})
		assert.True(t, domain.IsKind(err, domain.ExecutionIdentityChanged))
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)

		status, err := f.orchestrator.Status(ctx, "moved-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
		assert.Empty(t, status.TransactionHash)
	})

	t.Run("bundler estimates missing gas limits", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.paymaster.On("SponsorUserOperation", mock.Anything, mock.Anything, erc4337.EntryPointV07,
			mock.MatchedBy(func(p erc4337.SponsorshipPolicy) bool { return p.CalculateGasLimits })).
			Return(&erc4337.SponsorshipResult{Paymaster: paymasterA, PaymasterData: hexutil.Bytes{0x01}}, nil).Once()
		f.bundler.On("EstimateUserOperationGas", mock.Anything, mock.Anything, erc4337.EntryPointV07).
			Return(&erc4337.GasEstimates{
				PreVerificationGas:   (*hexutil.Big)(big.NewInt(48000)),
				VerificationGasLimit: (*hexutil.Big)(big.NewInt(350000)),
				CallGasLimit:         (*hexutil.Big)(big.NewInt(120000)),
			}, nil).Once()
		f.paymaster.On("SponsorUserOperation", mock.Anything, mock.Anything, erc4337.EntryPointV07,
			mock.MatchedBy(func(p erc4337.SponsorshipPolicy) bool { return !p.CalculateGasLimits })).
			Return(&erc4337.SponsorshipResult{Paymaster: paymasterA, PaymasterData: hexutil.Bytes{0x02}}, nil).Once()
		f.expectSignature()

		var sentOp *erc4337.UserOperation
		f.bundler.On("SendUserOperation", mock.Anything, mock.Anything, erc4337.EntryPointV07).
			Run(func(args mock.Arguments) { sentOp = args.Get(1).(*erc4337.UserOperation) }).
			Return(userOpHash, nil).Once()
		f.bundler.On("GetUserOperationReceipt", mock.Anything, userOpHash).Return(successfulReceipt(), nil)

		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{})
		require.NoError(t, err)
		assert.True(t, result.Sponsored)

		require.NotNil(t, sentOp)
		assert.Equal(t, int64(120000), sentOp.CallGasLimit.ToInt().Int64())
		assert.Equal(t, int64(350000), sentOp.VerificationGasLimit.ToInt().Int64())
		assert.Equal(t, hexutil.Bytes{0x02}, sentOp.PaymasterData)
		f.paymaster.AssertNumberOfCalls(t, "SponsorUserOperation", 2)
	})
}

func TestTransactionOrchestrator_Direct(t *testing.T) {
	ctx := context.Background()

	t.Run("force direct sends through the wallet", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		call := transferCall(tokenA)
		f.expectDirectSend(call, types.ReceiptStatusSuccessful)

		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true})
		require.NoError(t, err)
		assert.Equal(t, domain.PathDirect, result.Path)
		assert.False(t, result.Sponsored)
		assert.Empty(t, result.FallbackReason)
		assert.Equal(t, uint64(101), result.BlockNumber)
		assert.Equal(t, int32(0), f.bundlerDials.Load())
	})

	t.Run("force direct rejects a batch", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA), transferCall(tokenB)}, domain.ExecuteOptions{ForceDirect: true})
		assert.True(t, domain.IsKind(err, domain.ExecutionUnsupportedBatchInDirectMode))
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
	})

	t.Run("gasless disabled uses direct", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.manager.SetGaslessEnabled(false)
		call := transferCall(tokenA)
		f.expectDirectSend(call, types.ReceiptStatusSuccessful)

		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, domain.PathDirect, result.Path)
		assert.Empty(t, result.FallbackReason)
	})

	t.Run("network without session falls back", func(t *testing.T) {
		f := newOrchestratorFixture(t, amoyChainID)
		call := transferCall(tokenA)
		f.wallet.On("SendTransaction", mock.Anything, call).Return(directTx, nil).Once()
		f.chains[amoyChainID].setReceipt(directTx, &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21000})

		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, domain.PathDirect, result.Path)
		assert.Equal(t, domain.ExecutionSessionInitFailed, result.FallbackReason)
	})

	t.Run("reverted transaction", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		call := transferCall(tokenA)
		f.expectDirectSend(call, types.ReceiptStatusFailed)

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true, ActionID: "direct-rev"})
		assert.True(t, domain.IsKind(err, domain.ExecutionDirectSendFailed))

		status, err := f.orchestrator.Status(ctx, "direct-rev")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusFailed, status.Status)
		assert.Equal(t, directTx.Hex(), status.TransactionHash)
	})

	t.Run("unconfirmed transaction is ambiguous and not resent", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		call := transferCall(tokenA)
		f.wallet.On("SendTransaction", mock.Anything, call).Return(directTx, nil).Once()

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true, ActionID: "pay-1"})
		assert.True(t, domain.IsKind(err, domain.ExecutionAmbiguousOutcome))

		status, err := f.orchestrator.Status(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusAmbiguous, status.Status)
		assert.Equal(t, directTx.Hex(), status.TransactionHash)

		_, err = f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true, ActionID: "pay-1"})
		assert.True(t, domain.IsKind(err, domain.ExecutionDuplicateSubmission))
		f.wallet.AssertNumberOfCalls(t, "SendTransaction", 1)
	})

	t.Run("wallet on another chain is not used", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.wallet.ExpectedCalls = nil
		f.wallet.On("ChainID", mock.Anything).Return(baseChainID, nil)

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{ForceDirect: true})
		assert.True(t, domain.IsKind(err, domain.ExecutionIdentityChanged))
		f.wallet.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
	})

	t.Run("user rejects in wallet", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		call := transferCall(tokenA)
		f.wallet.On("SendTransaction", mock.Anything, call).Return(common.Hash{}, errors.New("user rejected transaction")).Once()

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true})
		assert.True(t, domain.IsKind(err, domain.ExecutionDirectSendFailed))
		assert.ErrorContains(t, err, "user rejected")
	})
}

func TestTransactionOrchestrator_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		_, err := f.orchestrator.Execute(ctx, nil, domain.ExecuteOptions{})
		assert.True(t, domain.IsKind(err, domain.ExecutionInvalidRequest))
	})

	t.Run("not connected", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		f.conn.Disconnect(ctx)
		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{})
		assert.True(t, domain.IsKind(err, domain.ExecutionNotConnected))
	})

	t.Run("duplicate action id", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		require.NoError(t, f.store.Claim(ctx, &domain.ExecutionCache{
			ActionID: "dup-1",
			ChainID:  sepoliaChainID,
			Status:   domain.ExecutionStatusPending,
		}))

		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{transferCall(tokenA)}, domain.ExecuteOptions{ActionID: "dup-1"})
		assert.True(t, domain.IsKind(err, domain.ExecutionDuplicateSubmission))
		assert.ErrorIs(t, err, domain.ErrActionInFlight)
		f.paymaster.AssertNotCalled(t, "SponsorUserOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failed action may be retried", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		call := transferCall(tokenA)
		f.wallet.On("SendTransaction", mock.Anything, call).Return(common.Hash{}, errors.New("user rejected transaction")).Once()
		_, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true, ActionID: "retry-1"})
		require.Error(t, err)

		f.expectDirectSend(call, types.ReceiptStatusSuccessful)
		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true, ActionID: "retry-1"})
		require.NoError(t, err)
		assert.Equal(t, "retry-1", result.ActionID)

		history, err := f.orchestrator.History(ctx, ownerA, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.ExecutionStatusCompleted, history[0].Status)
	})

	t.Run("generates an action id", func(t *testing.T) {
		f := newOrchestratorFixture(t, sepoliaChainID)
		call := transferCall(tokenA)
		f.expectDirectSend(call, types.ReceiptStatusSuccessful)

		result, err := f.orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{ForceDirect: true})
		require.NoError(t, err)
		require.NotEmpty(t, result.ActionID)

		status, err := f.orchestrator.Status(ctx, result.ActionID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusCompleted, status.Status)
	})
}
