// Package app wires configuration into the stores, oracle, settler and
// portfolio factory shared by the cmd binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/basket"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/cache"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/config"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/controls"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/keeper"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/portfolio"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rpc"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/settlement"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/storage"
)

// App holds every long-lived dependency. Optional parts are nil when
// their endpoint is not configured.
type App struct {
	Config *config.Config
	Logger *logrus.Logger

	Redis   *redis.Client
	Store   *cache.RedisStore
	Events  *cache.PubSubManager
	History *cache.ClickHouseStore

	Resolver resolver.RouteResolver
	Settler  orchestrator.Settler
	Balances *rpc.ERC20Reader

	Factory *portfolio.Factory
}

// New connects to Redis (required) and ClickHouse (when enabled), picks
// the oracle and settler, and builds the portfolio factory.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logrus.New()
	}
	a := &App{Config: cfg, Logger: logger}

	// 1. Redis: state snapshots, controls, events
	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		_ = a.Redis.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.Store = cache.NewRedisStoreFromClient(a.Redis, logger)
	a.Events = cache.NewPubSubManager(a.Redis, logger)

	// 2. ClickHouse history
	if cfg.ClickHouseEnabled {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		a.History = ch
		if err := ch.EnsureSchema(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}

	// 3. Oracle
	res, err := newResolver(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Resolver = res

	// 4. Settler
	if cfg.ExecutorURL != "" {
		a.Settler = settlement.NewHTTPExecutor(cfg.ExecutorURL, cfg.HTTPTimeout, logger)
	} else {
		logger.Warn("EXECUTOR_URL not set, settling legs in simulation")
		a.Settler = settlement.NewSimulator(a.Resolver)
	}

	// 5. Chain balances
	if cfg.RPCUrl != "" {
		a.Balances = rpc.NewERC20Reader(rpc.NewClient(rpc.ClientConfig{
			BaseURL:      cfg.RPCUrl,
			Timeout:      cfg.HTTPTimeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		}))
	}

	// 6. Portfolios
	deps := portfolio.Deps{
		Resolver: a.Resolver,
		Settler:  a.Settler,
		Store:    a.Store,
		Events:   a.Events,
		History:  a.history(),
		Logger:   logger,
	}
	a.Factory = portfolio.NewFactory(portfolio.FactoryDeps{
		Deps: deps,
		ControlsFor: func(name string) (orchestrator.Controls, error) {
			return controls.NewStore(a.Redis, name)
		},
	})

	return a, nil
}

func newResolver(cfg *config.Config, logger *logrus.Logger) (resolver.RouteResolver, error) {
	if cfg.RouterURL != "" {
		return resolver.NewHTTPClient(cfg.RouterURL, cfg.RouterAPIKey, cfg.HTTPTimeout, logger), nil
	}
	if cfg.MarketConfigPath != "" {
		s, err := resolver.LoadStaticFile(cfg.MarketConfigPath)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", cfg.MarketConfigPath).Info("using static market")
		return s, nil
	}
	logger.Warn("neither ROUTER_URL nor MARKET_CONFIG_PATH set, oracle has no prices")
	return resolver.NewStatic(), nil
}

// history returns the history store as an interface, nil when disabled.
func (a *App) history() storage.HistoryStore {
	if a.History == nil {
		return nil
	}
	return a.History
}

// HistoryStore exposes the optional history store without a typed nil.
func (a *App) HistoryStore() storage.HistoryStore {
	return a.history()
}

// BalanceReader exposes the optional chain reader without a typed nil.
func (a *App) BalanceReader() portfolio.BalanceReader {
	if a.Balances == nil {
		return nil
	}
	return a.Balances
}

// Start reloads stored portfolios and creates the configured default one
// when the store does not have it yet.
func (a *App) Start(ctx context.Context) error {
	n, err := a.Factory.Load(ctx)
	if err != nil {
		return fmt.Errorf("load portfolios: %w", err)
	}
	a.Logger.WithField("count", n).Info("portfolios loaded")

	name := strings.TrimSpace(a.Config.PortfolioName)
	if name == "" {
		return nil
	}
	if _, err := a.Factory.Get(name); err == nil {
		return nil
	}

	pc, err := a.DefaultPortfolio()
	if err != nil {
		return err
	}
	if _, err := a.Factory.Create(ctx, pc); err != nil && !errors.Is(err, portfolio.ErrExists) {
		return fmt.Errorf("create default portfolio: %w", err)
	}
	a.Logger.WithFields(logrus.Fields{
		"name":   pc.Name,
		"owner":  pc.Owner.Hex(),
		"tokens": len(pc.Basket),
	}).Info("default portfolio created")
	return nil
}

// DefaultPortfolio builds the portfolio described by the environment.
func (a *App) DefaultPortfolio() (portfolio.Config, error) {
	cfg := a.Config
	slippage, err := cfg.SlippageToleranceBps()
	if err != nil {
		return portfolio.Config{}, err
	}

	var entries []models.BasketEntry
	if cfg.BasketConfigPath != "" {
		entries, err = basket.LoadConfigFile(cfg.BasketConfigPath)
		if err != nil {
			return portfolio.Config{}, err
		}
	}

	return portfolio.Config{
		Name:                 strings.TrimSpace(cfg.PortfolioName),
		Symbol:               strings.TrimSpace(cfg.PortfolioSymbol),
		Owner:                cfg.Owner(),
		ReferenceAsset:       cfg.ReferenceAssetAddress(),
		ReferenceDecimals:    uint8(cfg.ReferenceDecimals),
		DepositFeeBps:        uint16(cfg.DepositFeeBps),
		WithdrawalFeeBps:     uint16(cfg.WithdrawalFeeBps),
		SlippageToleranceBps: slippage,
		MinDriftBps:          uint16(cfg.MinDriftBps),
		Basket:               entries,
	}, nil
}

// Keeper builds the scheduled rebalancer, nil when KEEPER_INTERVAL is 0.
func (a *App) Keeper() (*keeper.Keeper, error) {
	cfg := a.Config
	if cfg.KeeperInterval <= 0 {
		return nil, nil
	}

	kc := keeper.Config{
		Factory:  a.Factory,
		Caller:   cfg.KeeperCaller(),
		Interval: cfg.KeeperInterval,
		Limits: keeper.Limits{
			MaxRunsPerDay: cfg.KeeperMaxRunsPerDay,
			Cooldown:      cfg.KeeperCooldown,
		},
		Logger: a.Logger,
	}
	if cfg.KeeperSyncAccount != "" {
		if a.Balances == nil {
			return nil, fmt.Errorf("KEEPER_SYNC_ACCOUNT needs RPC_URL")
		}
		kc.Balances = a.Balances
		kc.Account = common.HexToAddress(cfg.KeeperSyncAccount)
	}
	return keeper.New(kc)
}

// Close releases every connection and reports all failures together.
func (a *App) Close() error {
	var errs []error

	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse close: %w", err))
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
