package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethaccount/gasless/erc4337"
	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

const (
	TestPrivateKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

	sepoliaChainID int64 = 11155111
	baseChainID    int64 = 84532
	amoyChainID    int64 = 80002
)

var (
	ownerA = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	ownerB = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	testAccountConfig = erc4337.AccountConfig{
		Factory:      common.HexToAddress("0x91E60e0613810449d098b0b5Ec8b51A0FE8c8985"),
		EntryPoint:   erc4337.EntryPointV07,
		InitCodeHash: common.HexToHash("0x21c35719bf5d5fd9c3a0b8c1a2c0f0a4b7a28b5e4d8b29bd5c2a0f9e1b3c4d5e"),
		Index:        big.NewInt(0),
	}

	testNetworks = []domain.NetworkDescriptor{
		{ChainID: sepoliaChainID, DisplayName: "Sepolia", RPCURL: "http://sepolia.invalid", BundlerURL: "http://bundler.invalid/11155111", PaymasterURL: "http://paymaster.invalid/11155111", NativeSymbol: "ETH"},
		{ChainID: baseChainID, DisplayName: "Base Sepolia", RPCURL: "http://base.invalid", BundlerURL: "http://bundler.invalid/84532", PaymasterURL: "http://paymaster.invalid/84532", NativeSymbol: "ETH"},
		{ChainID: amoyChainID, DisplayName: "Polygon Amoy", RPCURL: "http://amoy.invalid", NativeSymbol: "POL"},
	}
)

// newTestRegistry returns a registry whose clients are fakes; dialing is disabled
func newTestRegistry(t *testing.T) (*NetworkRegistry, map[int64]*fakeChain) {
	t.Helper()
	registry := NewNetworkRegistry(testNetworks)
	registry.dial = func(ctx context.Context, rawurl string) (ChainClient, error) {
		return nil, errors.New("dial disabled in tests")
	}
	chains := make(map[int64]*fakeChain)
	for _, n := range testNetworks {
		chains[n.ChainID] = newFakeChain(n.ChainID)
		registry.SetClient(n.ChainID, chains[n.ChainID])
	}
	return registry, chains
}

// fakeChain is an in-memory ChainClient
type fakeChain struct {
	mu          sync.Mutex
	chainID     int64
	balances    map[common.Address]*big.Int
	code        map[common.Address][]byte
	nonce       *big.Int
	gasPrice    *big.Int
	tip         *big.Int
	baseFee     *big.Int
	estimateGas uint64
	estimateErr error
	gasPriceErr error
	sendErr     error
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
}

func newFakeChain(chainID int64) *fakeChain {
	return &fakeChain{
		chainID:     chainID,
		balances:    make(map[common.Address]*big.Int),
		code:        make(map[common.Address][]byte),
		nonce:       big.NewInt(0),
		gasPrice:    big.NewInt(2_000_000_000),
		tip:         big.NewInt(1_000_000_000),
		baseFee:     big.NewInt(1_000_000_000),
		estimateGas: 21000,
		receipts:    make(map[common.Hash]*types.Receipt),
	}
}

func (c *fakeChain) setBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = wei
}

func (c *fakeChain) setReceipt(hash common.Hash, receipt *types.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[hash] = receipt
}

func (c *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(c.chainID), nil
}

func (c *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *fakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[account], nil
}

// CallContract answers every call with the configured account nonce
func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.LeftPadBytes(c.nonce.Bytes(), 32), nil
}

func (c *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimateGas, c.estimateErr
}

func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gasPriceErr != nil {
		return nil, c.gasPriceErr
	}
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *fakeChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.tip), nil
}

func (c *fakeChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: new(big.Int).Set(c.baseFee)}, nil
}

func (c *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.sent)), nil
}

func (c *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)
	return nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeChain) sentTransactions() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.Transaction(nil), c.sent...)
}

type mockWallet struct {
	mock.Mock
	events chan WalletEvent
}

func newMockWallet() *mockWallet {
	return &mockWallet{events: make(chan WalletEvent, 16)}
}

func (w *mockWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	args := w.Called(ctx)
	accounts, _ := args.Get(0).([]common.Address)
	return accounts, args.Error(1)
}

func (w *mockWallet) ChainID(ctx context.Context) (int64, error) {
	args := w.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (w *mockWallet) SwitchChain(ctx context.Context, chainID int64) error {
	return w.Called(ctx, chainID).Error(0)
}

func (w *mockWallet) AddChain(ctx context.Context, params AddChainParams) error {
	return w.Called(ctx, params).Error(0)
}

func (w *mockWallet) SendTransaction(ctx context.Context, call domain.CallRequest) (common.Hash, error) {
	args := w.Called(ctx, call)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (w *mockWallet) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	args := w.Called(ctx, hash)
	sig, _ := args.Get(0).([]byte)
	return sig, args.Error(1)
}

func (w *mockWallet) Events() <-chan WalletEvent {
	return w.events
}

// expectConnect scripts a successful account request on chainID
func (w *mockWallet) expectConnect(owner common.Address, chainID int64) {
	w.On("RequestAccounts", mock.Anything).Return([]common.Address{owner}, nil)
	w.On("ChainID", mock.Anything).Return(chainID, nil)
}

type mockBundler struct {
	mock.Mock
}

func (b *mockBundler) ChainId(ctx context.Context) (*big.Int, error) {
	args := b.Called(ctx)
	id, _ := args.Get(0).(*big.Int)
	return id, args.Error(1)
}

func (b *mockBundler) EstimateUserOperationGas(ctx context.Context, op *erc4337.UserOperation, entryPoint common.Address) (*erc4337.GasEstimates, error) {
	args := b.Called(ctx, op, entryPoint)
	est, _ := args.Get(0).(*erc4337.GasEstimates)
	return est, args.Error(1)
}

func (b *mockBundler) SendUserOperation(ctx context.Context, op *erc4337.UserOperation, entryPoint common.Address) (common.Hash, error) {
	args := b.Called(ctx, op, entryPoint)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (b *mockBundler) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*erc4337.UserOperationReceipt, error) {
	args := b.Called(ctx, userOpHash)
	receipt, _ := args.Get(0).(*erc4337.UserOperationReceipt)
	return receipt, args.Error(1)
}

func (b *mockBundler) Close() {
	b.Called()
}

type mockPaymaster struct {
	mock.Mock
}

func (p *mockPaymaster) SponsorUserOperation(ctx context.Context, op *erc4337.UserOperation, entryPoint common.Address, policy erc4337.SponsorshipPolicy) (*erc4337.SponsorshipResult, error) {
	args := p.Called(ctx, op, entryPoint, policy)
	result, _ := args.Get(0).(*erc4337.SponsorshipResult)
	return result, args.Error(1)
}

func (p *mockPaymaster) SponsorshipBalance(ctx context.Context) (*big.Int, error) {
	args := p.Called(ctx)
	balance, _ := args.Get(0).(*big.Int)
	return balance, args.Error(1)
}

func (p *mockPaymaster) Close() {
	p.Called()
}

// rpcError is a JSON-RPC error response as returned by go-ethereum's rpc client
type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }
