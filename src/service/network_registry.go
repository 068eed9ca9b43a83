package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// ChainClient is the node API used by the services. *ethclient.Client and the
// simulated backend client both satisfy it.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// NetworkConfig selects endpoint URLs for the built-in networks. Bundler and paymaster
// templates may contain {chainId} and {apiKey} placeholders.
type NetworkConfig struct {
	RPCURLs              map[int64]string
	BundlerURLTemplate   string
	PaymasterURLTemplate string
	APIKey               string
}

var defaultNetworks = []domain.NetworkDescriptor{
	{ChainID: 11155111, DisplayName: "Sepolia", RPCURL: "https://ethereum-sepolia-rpc.publicnode.com", NativeSymbol: "ETH", ExplorerURL: "https://sepolia.etherscan.io"},
	{ChainID: 421614, DisplayName: "Arbitrum Sepolia", RPCURL: "https://sepolia-rollup.arbitrum.io/rpc", NativeSymbol: "ETH", ExplorerURL: "https://sepolia.arbiscan.io"},
	{ChainID: 84532, DisplayName: "Base Sepolia", RPCURL: "https://sepolia.base.org", NativeSymbol: "ETH", ExplorerURL: "https://sepolia.basescan.org"},
	{ChainID: 11155420, DisplayName: "Optimism Sepolia", RPCURL: "https://sepolia.optimism.io", NativeSymbol: "ETH", ExplorerURL: "https://sepolia-optimism.etherscan.io"},
	{ChainID: 80002, DisplayName: "Polygon Amoy", RPCURL: "https://rpc-amoy.polygon.technology", NativeSymbol: "POL", ExplorerURL: "https://amoy.polygonscan.com"},
}

// BuildNetworks returns the built-in network table with cfg applied
func BuildNetworks(cfg NetworkConfig) []domain.NetworkDescriptor {
	networks := make([]domain.NetworkDescriptor, 0, len(defaultNetworks))
	for _, n := range defaultNetworks {
		if url := cfg.RPCURLs[n.ChainID]; url != "" {
			n.RPCURL = url
		}
		n.BundlerURL = expandEndpoint(cfg.BundlerURLTemplate, n.ChainID, cfg.APIKey)
		n.PaymasterURL = expandEndpoint(cfg.PaymasterURLTemplate, n.ChainID, cfg.APIKey)
		networks = append(networks, n)
	}
	return networks
}

func expandEndpoint(template string, chainID int64, apiKey string) string {
	if template == "" {
		return ""
	}
	return strings.NewReplacer(
		"{chainId}", strconv.FormatInt(chainID, 10),
		"{apiKey}", apiKey,
	).Replace(template)
}

// NetworkRegistry is the static table of supported networks plus a pool of node clients
type NetworkRegistry struct {
	networks   map[int64]domain.NetworkDescriptor
	clientPool map[int64]ChainClient
	dial       func(ctx context.Context, rawurl string) (ChainClient, error)
	mu         sync.RWMutex
}

func NewNetworkRegistry(networks []domain.NetworkDescriptor) *NetworkRegistry {
	r := &NetworkRegistry{
		networks:   make(map[int64]domain.NetworkDescriptor, len(networks)),
		clientPool: make(map[int64]ChainClient),
		dial: func(ctx context.Context, rawurl string) (ChainClient, error) {
			return ethclient.DialContext(ctx, rawurl)
		},
	}
	for _, n := range networks {
		r.networks[n.ChainID] = n
	}
	return r
}

// logger wraps the execution context with component info
func (r *NetworkRegistry) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "network-registry").Logger()
	return &l
}

// Lookup returns the descriptor for chainID
func (r *NetworkRegistry) Lookup(chainID int64) (domain.NetworkDescriptor, bool) {
	n, ok := r.networks[chainID]
	return n, ok
}

// Networks lists the registered networks ordered by chain id
func (r *NetworkRegistry) Networks() []domain.NetworkDescriptor {
	out := make([]domain.NetworkDescriptor, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Client returns a pooled node client for chainID, dialing on first use
func (r *NetworkRegistry) Client(ctx context.Context, chainID int64) (ChainClient, error) {
	r.mu.RLock()
	if client, exists := r.clientPool[chainID]; exists {
		r.mu.RUnlock()
		return client, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check pattern
	if client, exists := r.clientPool[chainID]; exists {
		return client, nil
	}

	network, ok := r.networks[chainID]
	if !ok {
		return nil, fmt.Errorf("unsupported chain id: %d", chainID)
	}

	client, err := r.dial(ctx, network.RPCURL)
	if err != nil {
		r.logger(ctx).Error().Err(err).
			Int64("chain_id", chainID).
			Msg("failed to dial node")
		return nil, fmt.Errorf("failed to dial chain %d: %w", chainID, err)
	}
	r.clientPool[chainID] = client

	return client, nil
}

// SetClient installs client for chainID, replacing any pooled one
func (r *NetworkRegistry) SetClient(chainID int64, client ChainClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clientPool[chainID] = client
}

// Close closes all client connections and cleans up the connection pool
func (r *NetworkRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, client := range r.clientPool {
		if c, ok := client.(interface{ Close() }); ok {
			c.Close()
		}
	}
	r.clientPool = make(map[int64]ChainClient)
}
