package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/config"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/settlement"
)

const (
	ownerHex = "0x00000000000000000000000000000000000000aa"
	usdcHex  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	wethHex  = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func writeFile(t *testing.T, name, body string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		RedisAddr:         "localhost:6379",
		RedisDB:           2,
		PortfolioName:     "default",
		PortfolioSymbol:   "BSKT",
		PortfolioOwner:    ownerHex,
		ReferenceAsset:    usdcHex,
		ReferenceDecimals: 6,
		DepositFeeBps:     100,
		WithdrawalFeeBps:  100,
		SlippageTolerance: "0.5",
		MinDriftBps:       50,
		HTTPTimeout:       time.Second,
		BasketConfigPath: writeFile(t, "basket.json", `{
  "tokens": ["`+wethHex+`", "`+usdcHex+`"],
  "weights": [5000, 5000],
  "venues": ["V3", "V3"],
  "feeTiers": [500, 500],
  "decimals": [18, 6]
}`),
	}
}

func setupTestRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
}

func TestNewResolverSelection(t *testing.T) {
	logger := quietLogger()

	r, err := newResolver(&config.Config{RouterURL: "http://router.local"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &resolver.HTTPClient{}, r)

	market := writeFile(t, "market.json", `{"prices": [{"base": "`+wethHex+`", "quote": "`+usdcHex+`", "price": "2000"}]}`)
	r, err = newResolver(&config.Config{MarketConfigPath: market}, logger)
	require.NoError(t, err)
	p, err := r.Quote(context.Background(), common.HexToAddress(wethHex), common.HexToAddress(usdcHex))
	require.NoError(t, err)
	assert.Equal(t, "2000", p.String())

	r, err = newResolver(&config.Config{}, logger)
	require.NoError(t, err)
	_, err = r.Quote(context.Background(), common.HexToAddress(wethHex), common.HexToAddress(usdcHex))
	assert.ErrorIs(t, err, resolver.ErrUnavailable)

	_, err = newResolver(&config.Config{MarketConfigPath: filepath.Join(t.TempDir(), "missing.json")}, logger)
	assert.Error(t, err)
}

func TestDefaultPortfolio(t *testing.T) {
	a := &App{Config: testConfig(t), Logger: quietLogger()}

	pc, err := a.DefaultPortfolio()
	require.NoError(t, err)
	assert.Equal(t, "default", pc.Name)
	assert.Equal(t, common.HexToAddress(ownerHex), pc.Owner)
	assert.Equal(t, uint16(50), pc.SlippageToleranceBps)
	require.Len(t, pc.Basket, 2)
	assert.Equal(t, uint16(5000), pc.Basket[0].TargetWeightBps)

	a.Config.BasketConfigPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = a.DefaultPortfolio()
	assert.Error(t, err)
}

func TestStartCreatesAndReloadsDefault(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()
	cfg := testConfig(t)
	owner := common.HexToAddress(ownerHex)
	usdc := common.HexToAddress(usdcHex)

	a, err := New(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, a.HistoryStore())
	assert.Nil(t, a.BalanceReader())
	assert.IsType(t, &settlement.Simulator{}, a.Settler)

	require.NoError(t, a.Start(ctx))
	p, err := a.Factory.Get("default")
	require.NoError(t, err)

	net, err := p.Deposit(ctx, owner, uint256.NewInt(1_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, "990000000", net.Dec())
	require.NoError(t, p.Pause(ctx, owner))
	require.NoError(t, a.Close())

	b, err := New(ctx, cfg, quietLogger())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Start(ctx))

	reloaded, err := b.Factory.Get("default")
	require.NoError(t, err)
	assert.Equal(t, "990000000", reloaded.Balance(usdc).Dec())
	assert.Equal(t, "10000000", reloaded.AccruedFees(usdc).Dec())

	paused, err := reloaded.Paused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestKeeperFromConfig(t *testing.T) {
	a := &App{Config: testConfig(t), Logger: quietLogger()}

	k, err := a.Keeper()
	require.NoError(t, err)
	assert.Nil(t, k)

	a.Config.KeeperInterval = time.Minute
	a.Config.KeeperSyncAccount = ownerHex
	_, err = a.Keeper()
	assert.Error(t, err)

	a.Config.KeeperSyncAccount = ""
	k, err = a.Keeper()
	assert.Error(t, err, "factory is required")
	assert.Nil(t, k)
}
