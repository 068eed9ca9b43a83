package app

import (
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type AppConfig struct {
	// =========================== REQUIRED ===========================

	// Database configuration (required)
	DSN *string
	// Redis configuration (required)
	RedisAddr *string
	// Private key of the local key wallet (required)
	PrivateKey *string

	// =========================== OPTIONAL ===========================

	// Logging configuration
	LogLevel *string

	// Runtime environment: dev, staging or prod
	Environment *string

	// HTTP server configuration
	Port *string
	Host *string

	// CORS configuration
	AllowOrigins *[]string

	// API secret for validating requests from frontend, disabled when empty
	APISecret *string

	// Per client rate limit of the API, disabled when zero
	RateLimitRPS   *float64
	RateLimitBurst *int

	// Migration configuration
	MigrationPath *string

	// Chain the key wallet starts on
	DefaultChainID *int64

	// Blockchain RPC URLs (all have defaults)
	SepoliaRPCURL         *string
	ArbitrumSepoliaRPCURL *string
	BaseSepoliaRPCURL     *string
	OptimismSepoliaRPCURL *string
	PolygonAmoyRPCURL     *string

	// Account abstraction endpoints, {chainId} and {apiKey} are substituted
	BundlerURLTemplate   *string
	PaymasterURLTemplate *string
	AAAPIKey             *string

	// Smart account factory, gasless execution is disabled without a factory
	AccountFactory      *common.Address
	AccountInitCodeHash *common.Hash
	AccountSaltIndex    *big.Int

	// Timing
	GasPollInterval   *time.Duration
	SponsorshipWindow *time.Duration
	ReceiptTimeout    *time.Duration

	// Swap aggregator
	SwapAPIBase *string
	SwapAPIKey  *string
}

func NewAppConfig() *AppConfig {
	config := &AppConfig{}

	// Load required configuration
	loadRequiredConfig(config)

	// Load optional configuration with defaults
	loadOptionalConfig(config)

	return config
}

// loadRequiredConfig loads all required configuration values and fails fast if any are missing
func loadRequiredConfig(config *AppConfig) {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		log.Fatalf("REQUIRED: DB_URL not set in environment")
	}
	config.DSN = &dsn

	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		log.Fatalf("REQUIRED: REDIS_URL not set in environment")
	}
	config.RedisAddr = &redisAddr

	loadPrivateKey(config)

	// CORS origins (required in production, optional in development)
	loadCORSConfig(config)
}

// NewWalletConfig loads the configuration needed to execute with the key wallet only,
// without the database, cache or HTTP settings
func NewWalletConfig() *AppConfig {
	config := &AppConfig{}
	loadPrivateKey(config)
	loadOptionalConfig(config)
	return config
}

// loadPrivateKey loads the key wallet's private key, with or without 0x prefix
func loadPrivateKey(config *AppConfig) {
	privateKey := os.Getenv("PRIVATE_KEY")
	if privateKey == "" {
		log.Fatalf("REQUIRED: PRIVATE_KEY not set in environment")
	}
	privateKey = strings.TrimPrefix(privateKey, "0x")
	config.PrivateKey = &privateKey
}

// loadOptionalConfig loads all optional configuration values with sensible defaults
func loadOptionalConfig(config *AppConfig) {
	port := getEnvWithDefault("PORT", "8080")
	config.Port = &port

	host := getEnvWithDefault("HOST", "localhost:"+port)
	config.Host = &host

	environment := getEnvWithDefault("ENVIRONMENT", "dev")
	config.Environment = &environment

	// Available levels: "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"
	logLevel := getEnvWithDefault("LOG_LEVEL", "debug")
	config.LogLevel = &logLevel

	migrationPath := getEnvWithDefault("MIGRATION_PATH", "file://migrations")
	config.MigrationPath = &migrationPath

	apiSecret := os.Getenv("API_SECRET")
	config.APISecret = &apiSecret

	rps := getFloatWithDefault("RATE_LIMIT_RPS", 20)
	config.RateLimitRPS = &rps
	burst := getIntWithDefault("RATE_LIMIT_BURST", 40)
	config.RateLimitBurst = &burst

	chainID := int64(getIntWithDefault("DEFAULT_CHAIN_ID", 11155111))
	config.DefaultChainID = &chainID

	loadRPCConfig(config)
	loadAccountConfig(config)

	config.GasPollInterval = durationPtr(getDurationWithDefault("GAS_POLL_INTERVAL", 30*time.Second))
	config.SponsorshipWindow = durationPtr(getDurationWithDefault("SPONSORSHIP_WINDOW", 5*time.Minute))
	config.ReceiptTimeout = durationPtr(getDurationWithDefault("RECEIPT_TIMEOUT", 2*time.Minute))

	swapAPIBase := getEnvWithDefault("SWAP_API_BASE", "https://api.1inch.dev/swap/v6.0")
	config.SwapAPIBase = &swapAPIBase
	swapAPIKey := os.Getenv("SWAP_API_KEY")
	config.SwapAPIKey = &swapAPIKey
}

// loadCORSConfig handles CORS origins configuration with environment-specific behavior
func loadCORSConfig(config *AppConfig) {
	allowOrigins := splitList(os.Getenv("ALLOW_ORIGINS"))
	if len(allowOrigins) == 0 {
		environment := getEnvWithDefault("ENVIRONMENT", "dev")
		if environment == "development" || environment == "dev" {
			allowOrigins = []string{"http://localhost:5173"}
		} else {
			log.Fatalf("REQUIRED: ALLOW_ORIGINS not set in environment (required in production)")
		}
	}
	config.AllowOrigins = &allowOrigins
}

// loadRPCConfig loads blockchain RPC URLs with public node defaults
func loadRPCConfig(config *AppConfig) {
	sepoliaRPCURL := getEnvWithDefault("SEPOLIA_RPC_URL", "https://ethereum-sepolia-rpc.publicnode.com")
	config.SepoliaRPCURL = &sepoliaRPCURL

	arbitrumSepoliaRPCURL := getEnvWithDefault("ARBITRUM_SEPOLIA_RPC_URL", "https://arbitrum-sepolia-rpc.publicnode.com")
	config.ArbitrumSepoliaRPCURL = &arbitrumSepoliaRPCURL

	baseSepoliaRPCURL := getEnvWithDefault("BASE_SEPOLIA_RPC_URL", "https://base-sepolia-rpc.publicnode.com")
	config.BaseSepoliaRPCURL = &baseSepoliaRPCURL

	optimismSepoliaRPCURL := getEnvWithDefault("OPTIMISM_SEPOLIA_RPC_URL", "https://optimism-sepolia-rpc.publicnode.com")
	config.OptimismSepoliaRPCURL = &optimismSepoliaRPCURL

	polygonAmoyRPCURL := getEnvWithDefault("POLYGON_AMOY_RPC_URL", "https://polygon-amoy-rpc.publicnode.com")
	config.PolygonAmoyRPCURL = &polygonAmoyRPCURL

	bundler := os.Getenv("BUNDLER_URL_TEMPLATE")
	config.BundlerURLTemplate = &bundler
	paymaster := os.Getenv("PAYMASTER_URL_TEMPLATE")
	config.PaymasterURLTemplate = &paymaster
	apiKey := os.Getenv("AA_API_KEY")
	config.AAAPIKey = &apiKey
}

// loadAccountConfig parses the smart account factory settings
func loadAccountConfig(config *AppConfig) {
	if factory := os.Getenv("ACCOUNT_FACTORY"); factory != "" {
		if !common.IsHexAddress(factory) {
			log.Fatalf("ACCOUNT_FACTORY %q is not an address", factory)
		}
		address := common.HexToAddress(factory)
		config.AccountFactory = &address
	}

	if initCodeHash := os.Getenv("ACCOUNT_INIT_CODE_HASH"); initCodeHash != "" {
		hash := common.HexToHash(initCodeHash)
		config.AccountInitCodeHash = &hash
	}

	index := new(big.Int)
	if raw := os.Getenv("ACCOUNT_SALT_INDEX"); raw != "" {
		if _, ok := index.SetString(raw, 0); !ok {
			log.Printf("Warning: Invalid ACCOUNT_SALT_INDEX value '%s', using 0", raw)
			index.SetInt64(0)
		}
	}
	config.AccountSaltIndex = index

	if config.AccountFactory != nil && config.AccountInitCodeHash == nil {
		log.Fatalf("REQUIRED: ACCOUNT_INIT_CODE_HASH must be set together with ACCOUNT_FACTORY")
	}
}

// GaslessConfigured reports whether sponsored execution can be offered at all
func (c *AppConfig) GaslessConfigured() bool {
	return c.AccountFactory != nil && *c.BundlerURLTemplate != "" && *c.PaymasterURLTemplate != ""
}

// RPCURLs maps chain ids to the configured RPC endpoints
func (c *AppConfig) RPCURLs() map[int64]string {
	return map[int64]string{
		11155111: *c.SepoliaRPCURL,
		421614:   *c.ArbitrumSepoliaRPCURL,
		84532:    *c.BaseSepoliaRPCURL,
		11155420: *c.OptimismSepoliaRPCURL,
		80002:    *c.PolygonAmoyRPCURL,
	}
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

// getDurationWithDefault accepts Go durations ("30s") or plain seconds
func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: Invalid %s value '%s', using default %s", key, raw, defaultValue)
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(raw); err == nil {
		return parsed
	}
	log.Printf("Warning: Invalid %s value '%s', using default %d", key, raw, defaultValue)
	return defaultValue
}

func getFloatWithDefault(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
		return parsed
	}
	log.Printf("Warning: Invalid %s value '%s', using default %g", key, raw, defaultValue)
	return defaultValue
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
