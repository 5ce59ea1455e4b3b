package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
)

type Config struct {
	// API settings
	APIAddr        string
	APIKey         string
	DevMode        bool
	RateLimitRPS   float64
	RateLimitBurst int

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClickHouse settings
	ClickHouseEnabled  bool
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Chain and sidecar endpoints. Empty router/executor URLs fall back to
	// the in-process static market and simulator.
	RPCUrl           string
	RouterURL        string
	RouterAPIKey     string
	ExecutorURL      string
	MarketConfigPath string // static market file, used when ROUTER_URL is empty

	// Default portfolio, created at startup when the state store has none
	PortfolioName     string
	PortfolioSymbol   string
	PortfolioOwner    string
	ReferenceAsset    string
	ReferenceDecimals int
	DepositFeeBps     int
	WithdrawalFeeBps  int
	SlippageTolerance string // readable percent, "0.5" is 50 bps
	MinDriftBps       int
	BasketConfigPath  string

	// Scheduled rebalancing, off when KeeperInterval is zero
	KeeperInterval      time.Duration
	KeeperAddress       string // caller used by the keeper, defaults to PORTFOLIO_OWNER
	KeeperSyncAccount   string // account whose ERC-20 balances are synced before each run
	KeeperMaxRunsPerDay int
	KeeperCooldown      time.Duration

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func Load() *Config {
	return &Config{
		// API
		APIAddr:        getEnv("API_ADDR", ":8090"),
		APIKey:         getEnv("API_KEY", ""),
		DevMode:        getBoolEnv("DEV_MODE", false),
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 10),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// ClickHouse
		ClickHouseEnabled:  getBoolEnv("CLICKHOUSE_ENABLED", true),
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "rebalancer"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// Endpoints
		RPCUrl:           getEnv("RPC_URL", ""),
		RouterURL:        getEnv("ROUTER_URL", ""),
		RouterAPIKey:     getEnv("ROUTER_API_KEY", ""),
		ExecutorURL:      getEnv("EXECUTOR_URL", ""),
		MarketConfigPath: getEnv("MARKET_CONFIG_PATH", ""),

		// Portfolio
		PortfolioName:     getEnv("PORTFOLIO_NAME", "default"),
		PortfolioSymbol:   getEnv("PORTFOLIO_SYMBOL", "BSKT"),
		PortfolioOwner:    getEnv("PORTFOLIO_OWNER", ""),
		ReferenceAsset:    getEnv("REFERENCE_ASSET", ""),
		ReferenceDecimals: getIntEnv("REFERENCE_DECIMALS", 18),
		DepositFeeBps:     getIntEnv("DEPOSIT_FEE_BPS", 100),
		WithdrawalFeeBps:  getIntEnv("WITHDRAWAL_FEE_BPS", 100),
		SlippageTolerance: getEnv("SLIPPAGE_TOLERANCE", "0.5"),
		MinDriftBps:       getIntEnv("MIN_DRIFT_BPS", constants.DefaultMinDriftBps),
		BasketConfigPath:  getEnv("BASKET_CONFIG_PATH", ""),

		// Keeper
		KeeperInterval:      getDurationEnv("KEEPER_INTERVAL", 0),
		KeeperAddress:       getEnv("KEEPER_ADDRESS", ""),
		KeeperSyncAccount:   getEnv("KEEPER_SYNC_ACCOUNT", ""),
		KeeperMaxRunsPerDay: getIntEnv("KEEPER_MAX_RUNS_PER_DAY", 24),
		KeeperCooldown:      getDurationEnv("KEEPER_COOLDOWN", 10*time.Minute),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.APIAddr == "" {
		errs = append(errs, errors.New("API_ADDR is required"))
	}
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required"))
	}
	if !common.IsHexAddress(c.PortfolioOwner) {
		errs = append(errs, fmt.Errorf("PORTFOLIO_OWNER %q is not an address", c.PortfolioOwner))
	}
	if !common.IsHexAddress(c.ReferenceAsset) {
		errs = append(errs, fmt.Errorf("REFERENCE_ASSET %q is not an address", c.ReferenceAsset))
	}
	if c.ReferenceDecimals < 0 || c.ReferenceDecimals > amount.MaxDecimals {
		errs = append(errs, fmt.Errorf("REFERENCE_DECIMALS %d out of range", c.ReferenceDecimals))
	}
	for name, v := range map[string]int{
		"DEPOSIT_FEE_BPS":    c.DepositFeeBps,
		"WITHDRAWAL_FEE_BPS": c.WithdrawalFeeBps,
		"MIN_DRIFT_BPS":      c.MinDriftBps,
	} {
		if v < 0 || v > amount.BpsDenominator {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, v))
		}
	}
	if _, err := c.SlippageToleranceBps(); err != nil {
		errs = append(errs, fmt.Errorf("SLIPPAGE_TOLERANCE: %w", err))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.KeeperInterval < 0 {
		errs = append(errs, errors.New("KEEPER_INTERVAL must not be negative"))
	}
	if c.KeeperAddress != "" && !common.IsHexAddress(c.KeeperAddress) {
		errs = append(errs, fmt.Errorf("KEEPER_ADDRESS %q is not an address", c.KeeperAddress))
	}
	if c.KeeperSyncAccount != "" && !common.IsHexAddress(c.KeeperSyncAccount) {
		errs = append(errs, fmt.Errorf("KEEPER_SYNC_ACCOUNT %q is not an address", c.KeeperSyncAccount))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) SlippageToleranceBps() (uint16, error) {
	return amount.ParsePercent(c.SlippageTolerance)
}

func (c *Config) Owner() common.Address {
	return common.HexToAddress(c.PortfolioOwner)
}

// KeeperCaller is the address scheduled rebalances run as.
func (c *Config) KeeperCaller() common.Address {
	if c.KeeperAddress != "" {
		return common.HexToAddress(c.KeeperAddress)
	}
	return c.Owner()
}

func (c *Config) ReferenceAssetAddress() common.Address {
	return common.HexToAddress(c.ReferenceAsset)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
