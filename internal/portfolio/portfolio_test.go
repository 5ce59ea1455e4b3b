package portfolio

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/fees"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/settlement"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/storage"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	wbtc = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func raw(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

func market() *resolver.Static {
	s := resolver.NewStatic().
		SetDecimals(usdc, 6).
		SetDecimals(wbtc, 8).
		SetPrice(weth, usdc, decimal.NewFromInt(2000)).
		SetPrice(wbtc, usdc, decimal.NewFromInt(40000)).
		SetPrice(dai, usdc, decimal.NewFromInt(1))
	for _, tok := range []models.Address{weth, wbtc, dai} {
		s.SetRoute(models.Route{Hops: []models.Address{tok, usdc}, Venue: models.VenueV3, PerHopFee: []uint32{500}})
		s.SetRoute(models.Route{Hops: []models.Address{usdc, tok}, Venue: models.VenueV2})
	}
	return s
}

func entry(token models.Address, bps uint16, decimals uint8) models.BasketEntry {
	return models.BasketEntry{Token: token, TargetWeightBps: bps, Venue: models.VenueV3, FeeTier: 500, Decimals: decimals}
}

func baseConfig(name string, basket ...models.BasketEntry) Config {
	return Config{
		Name:                 name,
		Symbol:               "BSK",
		Owner:                owner,
		ReferenceAsset:       usdc,
		ReferenceDecimals:    6,
		DepositFeeBps:        100,
		WithdrawalFeeBps:     100,
		SlippageToleranceBps: 50,
		Basket:               basket,
	}
}

type recorder struct {
	mu        sync.Mutex
	legs      []*models.LegEvent
	stored    []*models.LegEvent
	runs      []*models.RebalanceEvent
	feeEvents []*models.FeeWithdrawal
}

func (r *recorder) PublishLeg(_ context.Context, ev *models.LegEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legs = append(r.legs, ev)
	return nil
}

func (r *recorder) PublishRebalance(_ context.Context, ev *models.RebalanceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, ev)
	return nil
}

func (r *recorder) PublishFeeWithdrawal(_ context.Context, _ string, w *models.FeeWithdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeEvents = append(r.feeEvents, w)
	return nil
}

func (r *recorder) InsertLeg(_ context.Context, ev *models.LegEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, ev)
	return nil
}

func (r *recorder) InsertFeeWithdrawal(context.Context, string, *models.FeeWithdrawal) error {
	return errors.New("history offline")
}

func (r *recorder) Ping(context.Context) error { return nil }
func (r *recorder) Close() error               { return nil }

type memStore struct {
	mu     sync.Mutex
	states map[string]*models.PortfolioState
}

func newMemStore() *memStore {
	return &memStore{states: map[string]*models.PortfolioState{}}
}

func (m *memStore) SaveState(_ context.Context, st *models.PortfolioState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.states[st.Name] = &cp
	return nil
}

func (m *memStore) LoadState(_ context.Context, name string) (*models.PortfolioState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) ListPortfolios(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.states))
	for n := range m.states {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

type staticBalances map[models.Address]*uint256.Int

func (s staticBalances) BalanceOf(_ context.Context, token, _ models.Address) (*uint256.Int, error) {
	if v, ok := s[token]; ok {
		return v, nil
	}
	return new(uint256.Int), nil
}

func newPortfolio(t *testing.T, cfg Config, settler orchestrator.Settler, rec *recorder) *Portfolio {
	deps := Deps{
		Resolver: market(),
		Settler:  settler,
		Logger:   quietLogger(),
	}
	if rec != nil {
		deps.Events = rec
		deps.History = rec
	}
	p, err := New(cfg, deps)
	require.NoError(t, err)
	return p
}

func TestDepositAndWithdrawChargeFees(t *testing.T) {
	p := newPortfolio(t, baseConfig("fees", entry(weth, 5000, 18), entry(usdc, 5000, 6)), settlement.NewSimulator(market()), nil)
	ctx := context.Background()

	net, err := p.Deposit(ctx, stranger, raw("10000000000"))
	require.NoError(t, err)
	assert.Equal(t, "9900000000", net.Dec())
	assert.Equal(t, "9900000000", p.Balance(usdc).Dec())
	assert.Equal(t, "100000000", p.AccruedFees(usdc).Dec())

	_, err = p.Withdraw(ctx, stranger, raw("1000000"))
	assert.ErrorIs(t, err, orchestrator.ErrUnauthorized)

	net, err = p.Withdraw(ctx, owner, raw("1000000000"))
	require.NoError(t, err)
	assert.Equal(t, "990000000", net.Dec())
	assert.Equal(t, "8900000000", p.Balance(usdc).Dec())
	assert.Equal(t, "110000000", p.AccruedFees(usdc).Dec())

	_, err = p.Withdraw(ctx, owner, raw("8900000001"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "8900000000", p.Balance(usdc).Dec())

	_, err = p.Deposit(ctx, owner, new(uint256.Int))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDepositRequiresBasket(t *testing.T) {
	p := newPortfolio(t, baseConfig("empty"), settlement.NewSimulator(market()), nil)

	_, err := p.Deposit(context.Background(), owner, raw("1000000"))
	assert.ErrorIs(t, err, rebalance.ErrEmptyBasket)
}

func TestRebalanceMovesHoldingsThenIsIdempotent(t *testing.T) {
	sim := settlement.NewSimulator(market())
	p := newPortfolio(t, baseConfig("flow", entry(weth, 5000, 18), entry(usdc, 5000, 6)), sim, nil)
	ctx := context.Background()

	_, err := p.Deposit(ctx, owner, raw("10000000000"))
	require.NoError(t, err)

	res, err := p.Rebalance(ctx, owner)
	require.NoError(t, err)
	require.Len(t, res.Plan.Legs, 1)
	require.NotNil(t, res.Report)
	assert.Len(t, res.Report.Completed, 1)

	leg := res.Plan.Legs[0]
	assert.Equal(t, models.Buy, leg.Direction)
	assert.Equal(t, "4950000000", leg.AmountIn.Raw.Dec())

	assert.Equal(t, "4950000000", p.Balance(usdc).Dec())
	assert.Equal(t, "2475000000000000000", p.Balance(weth).Dec())
	assert.Equal(t, orchestrator.StateIdle, p.State())

	again, err := p.Rebalance(ctx, owner)
	require.NoError(t, err)
	assert.True(t, again.Plan.Empty())
	assert.Nil(t, again.Report)
	assert.Len(t, sim.Calls(), 1)
	assert.Equal(t, orchestrator.StateIdle, p.State())
}

func TestRebalancePartialFailure(t *testing.T) {
	sim := settlement.NewSimulator(market())
	sim.FailCall(1, nil)
	rec := &recorder{}

	cfg := baseConfig("partial", entry(weth, 2500, 18), entry(dai, 2500, 18), entry(wbtc, 2500, 8), entry(usdc, 2500, 6))
	p := newPortfolio(t, cfg, sim, rec)
	ctx := context.Background()

	require.NoError(t, p.SyncBalances(ctx, owner, staticBalances{
		weth: raw("2000000000000000000"),
		wbtc: raw("5000000"),
		usdc: raw("4000000000"),
	}, owner))

	res, err := p.Rebalance(ctx, owner)
	var serr *orchestrator.SettlementError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, serr.Leg)
	assert.ErrorIs(t, err, orchestrator.ErrReverted)

	require.NotNil(t, res.Report)
	assert.Len(t, res.Report.Completed, 1)
	assert.Len(t, res.Report.NotExecuted, 2)
	assert.Equal(t, orchestrator.StateFailed, p.State())

	// only the settled sell moved balances
	assert.Equal(t, "1250000000000000000", p.Balance(weth).Dec())
	assert.Equal(t, "5500000000", p.Balance(usdc).Dec())
	assert.True(t, p.Balance(dai).IsZero())

	require.Len(t, rec.legs, 2)
	assert.True(t, rec.legs[0].Success)
	assert.Equal(t, "1500000000", rec.legs[0].AmountOut.Dec())
	assert.False(t, rec.legs[1].Success)
	assert.NotEmpty(t, rec.legs[1].Error)
	assert.Len(t, rec.stored, 2)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, "failed", rec.runs[0].State)
	assert.Equal(t, 2, rec.runs[0].NotExecuted)

	// a failed invocation can be re-planned
	_, err = p.Rebalance(ctx, owner)
	assert.NoError(t, err)
}

func TestRebalanceAuthorization(t *testing.T) {
	p := newPortfolio(t, baseConfig("auth", entry(weth, 5000, 18), entry(usdc, 5000, 6)), settlement.NewSimulator(market()), nil)
	ctx := context.Background()

	_, err := p.Rebalance(ctx, operator)
	assert.ErrorIs(t, err, orchestrator.ErrUnauthorized)

	require.NoError(t, p.Whitelist(ctx, owner, operator))
	_, err = p.Rebalance(ctx, operator)
	assert.ErrorIs(t, err, rebalance.ErrNoValuation)
	assert.Equal(t, orchestrator.StateIdle, p.State())

	require.NoError(t, p.Pause(ctx, owner))
	_, err = p.Rebalance(ctx, operator)
	assert.ErrorIs(t, err, orchestrator.ErrPaused)

	assert.ErrorIs(t, p.Unpause(ctx, operator), orchestrator.ErrUnauthorized)
}

type blockingSettler struct {
	inner   orchestrator.Settler
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSettler) Settle(ctx context.Context, call models.SettlementCall) (*uint256.Int, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.inner.Settle(ctx, call)
}

func TestMutationsRejectedWhileRebalancing(t *testing.T) {
	bs := &blockingSettler{
		inner:   settlement.NewSimulator(market()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := newPortfolio(t, baseConfig("busy", entry(weth, 5000, 18), entry(usdc, 5000, 6)), bs, nil)
	ctx := context.Background()

	_, err := p.Deposit(ctx, owner, raw("10000000000"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Rebalance(ctx, owner)
		done <- err
	}()
	<-bs.entered

	_, err = p.Deposit(ctx, owner, raw("1000000"))
	assert.ErrorIs(t, err, orchestrator.ErrBusy)
	_, err = p.Withdraw(ctx, owner, raw("1000000"))
	assert.ErrorIs(t, err, orchestrator.ErrBusy)
	assert.ErrorIs(t, p.ReplaceBasket(ctx, owner, []models.BasketEntry{entry(usdc, 10000, 6)}), orchestrator.ErrBusy)
	_, err = p.Rebalance(ctx, owner)
	assert.ErrorIs(t, err, orchestrator.ErrBusy)

	close(bs.release)
	require.NoError(t, <-done)

	require.NoError(t, p.ReplaceBasket(ctx, owner, []models.BasketEntry{entry(usdc, 10000, 6)}))
	assert.Len(t, p.Basket(), 1)
}

func TestBasketMutationAuthorization(t *testing.T) {
	p := newPortfolio(t, baseConfig("basket"), settlement.NewSimulator(market()), nil)
	ctx := context.Background()

	err := p.ReplaceBasket(ctx, stranger, []models.BasketEntry{entry(usdc, 10000, 6)})
	assert.ErrorIs(t, err, orchestrator.ErrUnauthorized)

	require.NoError(t, p.AppendBasket(ctx, owner, []models.BasketEntry{entry(weth, 4000, 18), entry(usdc, 6000, 6)}))
	assert.Len(t, p.Weights(), 2)
}

func TestWithdrawFeesAndSlippage(t *testing.T) {
	rec := &recorder{}
	p := newPortfolio(t, baseConfig("owner-ops", entry(weth, 5000, 18), entry(usdc, 5000, 6)), settlement.NewSimulator(market()), rec)
	ctx := context.Background()

	_, err := p.Deposit(ctx, stranger, raw("10000000000"))
	require.NoError(t, err)

	_, err = p.WithdrawFees(ctx, stranger, usdc, stranger)
	assert.ErrorIs(t, err, fees.ErrNotOwner)

	w, err := p.WithdrawFees(ctx, owner, usdc, operator)
	require.NoError(t, err)
	assert.Equal(t, "100000000", w.Amount.Dec())
	assert.Equal(t, operator, w.Recipient)
	assert.Len(t, rec.feeEvents, 1)

	_, err = p.WithdrawFees(ctx, owner, usdc, operator)
	assert.ErrorIs(t, err, fees.ErrNothingToWithdraw)

	assert.ErrorIs(t, p.SetSlippageTolerance(ctx, operator, 500), orchestrator.ErrUnauthorized)
	require.NoError(t, p.SetSlippageTolerance(ctx, owner, 500))
	assert.Equal(t, uint16(500), p.Config().SlippageToleranceBps)
	assert.Error(t, p.SetSlippageTolerance(ctx, owner, 10001))
}

func TestNewValidation(t *testing.T) {
	deps := Deps{Resolver: market(), Settler: settlement.NewSimulator(market()), Logger: quietLogger()}

	bad := []Config{
		baseConfig(""),
		baseConfig("has space"),
		func() Config { c := baseConfig("x"); c.Owner = models.Address{}; return c }(),
		func() Config { c := baseConfig("x"); c.ReferenceAsset = models.Address{}; return c }(),
		func() Config { c := baseConfig("x"); c.DepositFeeBps = 10001; return c }(),
		baseConfig("x", entry(weth, 5000, 18)),
	}
	for _, cfg := range bad {
		_, err := New(cfg, deps)
		assert.Error(t, err, cfg.Name)
	}

	_, err := New(baseConfig("x"), Deps{Settler: deps.Settler})
	assert.Error(t, err)
}

func TestFactoryCreateListAndReload(t *testing.T) {
	store := newMemStore()
	deps := FactoryDeps{Deps: Deps{
		Resolver: market(),
		Settler:  settlement.NewSimulator(market()),
		Store:    store,
		Logger:   quietLogger(),
	}}
	ctx := context.Background()

	f := NewFactory(deps)
	p, err := f.Create(ctx, baseConfig("alpha", entry(weth, 5000, 18), entry(usdc, 5000, 6)))
	require.NoError(t, err)

	other := baseConfig("beta", entry(usdc, 10000, 6))
	other.Owner = operator
	_, err = f.Create(ctx, other)
	require.NoError(t, err)

	_, err = f.Create(ctx, baseConfig("alpha"))
	assert.ErrorIs(t, err, ErrExists)

	_, err = p.Deposit(ctx, owner, raw("5000000000"))
	require.NoError(t, err)
	require.NoError(t, p.SetSlippageTolerance(ctx, owner, 500))

	assert.Len(t, f.List(models.Address{}), 2)
	mine := f.List(owner)
	require.Len(t, mine, 1)
	assert.Equal(t, "alpha", mine[0].Name())

	_, err = f.Get("gamma")
	assert.ErrorIs(t, err, ErrNotFound)

	reloaded := NewFactory(deps)
	n, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	q, err := reloaded.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, p.Balance(usdc), q.Balance(usdc))
	assert.Equal(t, "50000000", q.AccruedFees(usdc).Dec())
	assert.Equal(t, p.Basket(), q.Basket())
	assert.Equal(t, uint16(500), q.Config().SlippageToleranceBps)
}
