package rebalance

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	wbtc = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	link = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")
)

// countingResolver records every oracle call by pair.
type countingResolver struct {
	resolver.RouteResolver

	mu     sync.Mutex
	quotes map[[2]models.Address]int
}

func newCounting(inner resolver.RouteResolver) *countingResolver {
	return &countingResolver{RouteResolver: inner, quotes: map[[2]models.Address]int{}}
}

func (c *countingResolver) Quote(ctx context.Context, a, b models.Address) (decimal.Decimal, error) {
	c.mu.Lock()
	c.quotes[[2]models.Address{a, b}]++
	c.mu.Unlock()
	return c.RouteResolver.Quote(ctx, a, b)
}

func market() *resolver.Static {
	s := resolver.NewStatic().
		SetDecimals(usdc, 6).
		SetDecimals(wbtc, 8).
		SetPrice(weth, usdc, decimal.NewFromInt(2000)).
		SetPrice(wbtc, usdc, decimal.NewFromInt(40000)).
		SetPrice(dai, usdc, decimal.NewFromInt(1))
	for _, tok := range []models.Address{weth, wbtc, dai, link} {
		s.SetRoute(models.Route{Hops: []models.Address{tok, usdc}, Venue: models.VenueV3, PerHopFee: []uint32{500}})
		s.SetRoute(models.Route{Hops: []models.Address{usdc, tok}, Venue: models.VenueV2})
	}
	return s
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newCalc(t *testing.T, tolBps, minDriftBps uint16) *Calculator {
	c, err := NewCalculator(Config{
		ReferenceAsset:       usdc,
		ReferenceDecimals:    6,
		SlippageToleranceBps: tolBps,
		MinDriftBps:          minDriftBps,
	}, quietLogger())
	require.NoError(t, err)
	return c
}

func raw(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

func e(token models.Address, bps uint16, decimals uint8) models.BasketEntry {
	return models.BasketEntry{Token: token, TargetWeightBps: bps, Venue: models.VenueV3, FeeTier: 500, Decimals: decimals}
}

func TestComputePlanNoOp(t *testing.T) {
	entries := []models.BasketEntry{e(weth, 5000, 18), e(usdc, 5000, 6)}

	tests := []struct {
		name     string
		wethRaw  string
		minDrift uint16
	}{
		{name: "exactly on target", wethRaw: "1000000000000000000", minDrift: 0},
		{name: "within threshold", wethRaw: "1010000000000000000", minDrift: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holdings := []Holding{
				{Token: weth, Balance: raw(tt.wethRaw), Decimals: 18},
				{Token: usdc, Balance: raw("2000000000"), Decimals: 6},
			}
			plan, err := newCalc(t, 50, tt.minDrift).ComputePlan(context.Background(), holdings, entries, market())
			require.NoError(t, err)
			assert.True(t, plan.Empty())
			assert.Len(t, plan.Legs, 0)
			assert.Empty(t, plan.Warnings)
		})
	}
}

func TestComputePlanOrderingAndAmounts(t *testing.T) {
	entries := []models.BasketEntry{e(weth, 2500, 18), e(dai, 2500, 18), e(wbtc, 2500, 8), e(usdc, 2500, 6)}
	holdings := []Holding{
		{Token: weth, Balance: raw("2000000000000000000"), Decimals: 18}, // 4000
		{Token: wbtc, Balance: raw("5000000"), Decimals: 8},              // 2000
		{Token: usdc, Balance: raw("4000000000"), Decimals: 6},           // 4000
	}

	oracle := newCounting(market())
	plan, err := newCalc(t, 50, 0).ComputePlan(context.Background(), holdings, entries, oracle)
	require.NoError(t, err)
	require.Len(t, plan.Legs, 3)
	assert.True(t, plan.TotalValue.Equal(decimal.NewFromInt(10000)))

	sell := plan.Legs[0]
	assert.Equal(t, 0, sell.Index)
	assert.Equal(t, weth, sell.Token)
	assert.Equal(t, models.Sell, sell.Direction)
	assert.Equal(t, weth, sell.From)
	assert.Equal(t, usdc, sell.To)
	assert.Equal(t, "750000000000000000", sell.AmountIn.Raw.Dec())
	assert.Equal(t, "1500000000", sell.QuotedOut.Dec())
	assert.Equal(t, "1492500000", sell.MinAmountOut.Dec())
	assert.Equal(t, models.VenueV3, sell.Route.Venue)

	buyDai := plan.Legs[1]
	assert.Equal(t, dai, buyDai.Token)
	assert.Equal(t, models.Buy, buyDai.Direction)
	assert.Equal(t, usdc, buyDai.From)
	assert.Equal(t, "2500000000", buyDai.AmountIn.Raw.Dec())
	assert.Equal(t, uint8(6), buyDai.AmountIn.Decimals)
	assert.Equal(t, "2500000000000000000000", buyDai.QuotedOut.Dec())

	buyBtc := plan.Legs[2]
	assert.Equal(t, wbtc, buyBtc.Token)
	assert.Equal(t, "500000000", buyBtc.AmountIn.Raw.Dec())
	assert.Equal(t, "1250000", buyBtc.QuotedOut.Dec())
	assert.Equal(t, uint8(8), buyBtc.OutDecimals)

	// reference asset and zero balances are never quoted, each pair at most once
	for pair, n := range oracle.quotes {
		assert.Equal(t, 1, n, "pair %v", pair)
		assert.NotEqual(t, usdc, pair[0])
	}
	assert.Len(t, oracle.quotes, 2)
}

func TestComputePlanTiesFollowBasketOrder(t *testing.T) {
	holdings := []Holding{{Token: usdc, Balance: raw("10000000000"), Decimals: 6}}

	plan, err := newCalc(t, 0, 0).ComputePlan(context.Background(), holdings,
		[]models.BasketEntry{e(weth, 3000, 18), e(dai, 3000, 18), e(usdc, 4000, 6)}, market())
	require.NoError(t, err)
	require.Len(t, plan.Legs, 2)
	assert.Equal(t, []models.Address{weth, dai}, []models.Address{plan.Legs[0].Token, plan.Legs[1].Token})

	plan, err = newCalc(t, 0, 0).ComputePlan(context.Background(), holdings,
		[]models.BasketEntry{e(dai, 3000, 18), e(weth, 3000, 18), e(usdc, 4000, 6)}, market())
	require.NoError(t, err)
	require.Len(t, plan.Legs, 2)
	assert.Equal(t, []models.Address{dai, weth}, []models.Address{plan.Legs[0].Token, plan.Legs[1].Token})
	assert.Equal(t, plan.Legs[0].QuotedOut, plan.Legs[0].MinAmountOut, "zero tolerance keeps the quote")
}

func TestComputePlanSellsNonBasketHoldings(t *testing.T) {
	oracle := market().SetPrice(link, usdc, decimal.NewFromInt(10))
	holdings := []Holding{{Token: link, Balance: raw("100000000000000000000"), Decimals: 18}}

	plan, err := newCalc(t, 100, 0).ComputePlan(context.Background(), holdings,
		[]models.BasketEntry{e(usdc, 10000, 6)}, oracle)
	require.NoError(t, err)
	require.Len(t, plan.Legs, 1)

	leg := plan.Legs[0]
	assert.Equal(t, link, leg.Token)
	assert.Equal(t, models.Sell, leg.Direction)
	assert.Equal(t, "100000000000000000000", leg.AmountIn.Raw.Dec())
	assert.Equal(t, "1000000000", leg.QuotedOut.Dec())
	assert.Equal(t, "990000000", leg.MinAmountOut.Dec())
}

func TestComputePlanDropsUnroutableLegs(t *testing.T) {
	oracle := resolver.NewStatic().
		SetDecimals(usdc, 6).
		SetPrice(weth, usdc, decimal.NewFromInt(2000)).
		SetPrice(dai, usdc, decimal.NewFromInt(1)).
		SetRoute(models.Route{Hops: []models.Address{usdc, dai}, Venue: models.VenueV2})
	holdings := []Holding{{Token: usdc, Balance: raw("10000000000"), Decimals: 6}}

	plan, err := newCalc(t, 50, 0).ComputePlan(context.Background(), holdings,
		[]models.BasketEntry{e(weth, 5000, 18), e(dai, 5000, 18)}, oracle)
	require.NoError(t, err)

	require.Len(t, plan.Legs, 1)
	assert.Equal(t, dai, plan.Legs[0].Token)
	assert.Equal(t, 0, plan.Legs[0].Index)

	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, WarnUnroutableToken, plan.Warnings[0].Kind)
	assert.Equal(t, weth, plan.Warnings[0].Token)
}

func TestComputePlanUnpricedHolding(t *testing.T) {
	holdings := []Holding{
		{Token: link, Balance: raw("5000000000000000000"), Decimals: 18},
		{Token: usdc, Balance: raw("1000000000"), Decimals: 6},
	}

	plan, err := newCalc(t, 50, 0).ComputePlan(context.Background(), holdings,
		[]models.BasketEntry{e(usdc, 10000, 6)}, market())
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, WarnUnpricedToken, plan.Warnings[0].Kind)
	assert.Equal(t, link, plan.Warnings[0].Token)
	assert.True(t, plan.TotalValue.Equal(decimal.NewFromInt(1000)))
}

func TestComputePlanErrors(t *testing.T) {
	c := newCalc(t, 50, 0)
	ctx := context.Background()

	_, err := c.ComputePlan(ctx, nil, nil, market())
	assert.ErrorIs(t, err, ErrEmptyBasket)

	_, err = c.ComputePlan(ctx, nil, []models.BasketEntry{e(weth, 10000, 18)}, market())
	assert.ErrorIs(t, err, ErrNoValuation)

	_, err = c.ComputePlan(ctx,
		[]Holding{{Token: link, Balance: raw("1"), Decimals: 18}},
		[]models.BasketEntry{e(weth, 10000, 18)}, market())
	assert.ErrorIs(t, err, ErrNoValuation)
}

func TestConfigValidate(t *testing.T) {
	_, err := NewCalculator(Config{}, nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewCalculator(Config{ReferenceAsset: usdc, SlippageToleranceBps: 10001}, nil)
	assert.ErrorIs(t, err, ErrConfig)
}
