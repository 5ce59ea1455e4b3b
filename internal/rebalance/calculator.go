// Package rebalance computes the trade plan that moves a portfolio's live
// holdings toward its basket's target weights.
package rebalance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/metrics"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
)

var bpsDenom = decimal.NewFromInt(amount.BpsDenominator)

type Calculator struct {
	mu     sync.RWMutex
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

func NewCalculator(cfg Config, logger *logrus.Logger) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Calculator{cfg: cfg, logger: logger, now: time.Now}, nil
}

func (c *Calculator) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetSlippageTolerance changes the tolerance used by later plans.
func (c *Calculator) SetSlippageTolerance(bps uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cfg
	next.SlippageToleranceBps = bps
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	return nil
}

// position is one token under consideration, in basket order followed by
// non-basket holdings.
type position struct {
	order    int
	token    models.Address
	balance  *uint256.Int
	decimals uint8
	weight   uint16
	price    decimal.Decimal
	value    decimal.Decimal
	priced   bool
	drift    decimal.Decimal
}

// ComputePlan prices holdings through a per-call quote snapshot and returns
// the ordered legs. A plan with no legs means the portfolio is already
// within the minimum-drift threshold.
func (c *Calculator) ComputePlan(
	ctx context.Context,
	holdings []Holding,
	entries []models.BasketEntry,
	res resolver.RouteResolver,
) (*Plan, error) {

	start := time.Now()
	plan, err := c.computePlan(ctx, holdings, entries, res)
	metrics.PlanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PlansComputed.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.PlansComputed.WithLabelValues("ok").Inc()
	metrics.PlanLegs.Observe(float64(len(plan.Legs)))
	for _, w := range plan.Warnings {
		metrics.PlanWarnings.WithLabelValues(string(w.Kind)).Inc()
	}
	return plan, nil
}

func (c *Calculator) computePlan(
	ctx context.Context,
	holdings []Holding,
	entries []models.BasketEntry,
	res resolver.RouteResolver,
) (*Plan, error) {

	if len(entries) == 0 {
		return nil, ErrEmptyBasket
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := c.Config()
	snap := resolver.NewSnapshot(res)
	plan := &Plan{
		ID:        uuid.NewString(),
		Config:    cfg,
		CreatedAt: c.now().UTC(),
	}

	positions := c.positions(holdings, entries)

	// 1. Value every position in the reference asset
	total := decimal.Zero
	pricedAny := false
	for _, p := range positions {
		if err := c.value(ctx, cfg, snap, p); err != nil {
			plan.Warnings = append(plan.Warnings, Warning{
				Kind:   WarnUnpricedToken,
				Token:  p.token,
				Reason: err.Error(),
			})
			continue
		}
		if !p.balance.IsZero() {
			pricedAny = true
		}
		total = total.Add(p.value)
	}
	if !pricedAny || !total.IsPositive() {
		return nil, fmt.Errorf("%w: total value %s", ErrNoValuation, total.String())
	}
	plan.TotalValue = total

	// 2. Drift against target, dropping anything under the threshold
	threshold := total.Mul(decimal.NewFromInt(int64(cfg.MinDriftBps)))
	var sells, buys []*position
	for _, p := range positions {
		if !p.priced || p.token == cfg.ReferenceAsset {
			continue
		}
		// weight/10_000 is an exact decimal shift
		target := total.Mul(decimal.NewFromInt(int64(p.weight))).Shift(-4)
		p.drift = p.value.Sub(target)

		abs := p.drift.Abs()
		if abs.IsZero() || abs.Mul(bpsDenom).LessThan(threshold) {
			continue
		}
		if p.drift.IsPositive() {
			sells = append(sells, p)
		} else {
			buys = append(buys, p)
		}
	}
	sortByDrift(sells)
	sortByDrift(buys)

	// 3. Size and route each leg
	for _, p := range append(sells, buys...) {
		leg, warn, err := c.leg(ctx, cfg, snap, p)
		if err != nil {
			return nil, err
		}
		if warn != nil {
			plan.Warnings = append(plan.Warnings, *warn)
			continue
		}
		if leg == nil {
			continue
		}
		leg.Index = len(plan.Legs)
		plan.Legs = append(plan.Legs, *leg)
	}

	c.logger.WithFields(logrus.Fields{
		"plan_id":     plan.ID,
		"total_value": total.String(),
		"legs":        len(plan.Legs),
		"warnings":    len(plan.Warnings),
		"quotes":      snap.Calls(),
	}).Debug("rebalance plan computed")

	return plan, nil
}

func (c *Calculator) positions(holdings []Holding, entries []models.BasketEntry) []*position {
	balances := make(map[models.Address]Holding, len(holdings))
	for _, h := range holdings {
		balances[h.Token] = h
	}

	out := make([]*position, 0, len(entries)+len(holdings))
	seen := make(map[models.Address]bool, len(entries))
	for _, e := range entries {
		p := &position{
			order:    len(out),
			token:    e.Token,
			balance:  new(uint256.Int),
			decimals: e.Decimals,
			weight:   e.TargetWeightBps,
		}
		if h, ok := balances[e.Token]; ok && h.Balance != nil {
			p.balance = h.Balance
		}
		seen[e.Token] = true
		out = append(out, p)
	}
	for _, h := range holdings {
		if seen[h.Token] {
			continue
		}
		seen[h.Token] = true
		bal := h.Balance
		if bal == nil {
			bal = new(uint256.Int)
		}
		out = append(out, &position{order: len(out), token: h.Token, balance: bal, decimals: h.Decimals})
	}
	return out
}

// value prices p. Zero balances are worth zero without asking the oracle,
// and the reference asset is worth one unit of itself.
func (c *Calculator) value(ctx context.Context, cfg Config, snap *resolver.Snapshot, p *position) error {
	if p.token == cfg.ReferenceAsset {
		p.price = decimal.NewFromInt(1)
		p.value = amount.FromBaseUnits(p.balance, p.decimals)
		p.priced = true
		return nil
	}
	if p.balance.IsZero() {
		p.value = decimal.Zero
		p.priced = true
		return nil
	}

	price, err := snap.Quote(ctx, p.token, cfg.ReferenceAsset)
	if err != nil {
		return err
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: non-positive price %s", resolver.ErrUnavailable, price.String())
	}
	p.price = price
	p.value = amount.FromBaseUnits(p.balance, p.decimals).Mul(price)
	p.priced = true
	return nil
}

func (c *Calculator) leg(ctx context.Context, cfg Config, snap *resolver.Snapshot, p *position) (*Leg, *Warning, error) {
	abs := p.drift.Abs()
	leg := &Leg{Token: p.token, Drift: abs}

	var human decimal.Decimal
	if p.drift.IsPositive() {
		leg.Direction = models.Sell
		leg.From, leg.To = p.token, cfg.ReferenceAsset
		leg.OutDecimals = cfg.ReferenceDecimals

		// round down so a sell never exceeds the balance
		human = abs.DivRound(p.price, int32(p.decimals)+4).Truncate(int32(p.decimals))
	} else {
		leg.Direction = models.Buy
		leg.From, leg.To = cfg.ReferenceAsset, p.token
		leg.OutDecimals = p.decimals
		human = abs.Truncate(int32(cfg.ReferenceDecimals))
	}

	inDecimals := cfg.ReferenceDecimals
	if leg.Direction == models.Sell {
		inDecimals = p.decimals
	}
	in, err := amount.NewTradeAmount(human, inDecimals)
	if err != nil {
		return nil, nil, fmt.Errorf("size leg for %s: %w", p.token.Hex(), err)
	}
	if leg.Direction == models.Sell && in.Raw.Gt(p.balance) {
		in.Raw = new(uint256.Int).Set(p.balance)
	}
	if in.IsZero() {
		return nil, nil, nil
	}
	leg.AmountIn = in

	rq, err := snap.Route(ctx, leg.From, leg.To, in.Raw)
	if err == nil && (rq == nil || rq.Route.Source() != leg.From || rq.Route.Destination() != leg.To) {
		err = fmt.Errorf("%w: oracle returned a route for another pair", resolver.ErrNoRoute)
	}
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"token":     p.token.Hex(),
			"direction": leg.Direction,
		}).Warn("dropping unroutable leg")
		return nil, &Warning{Kind: WarnUnroutableToken, Token: p.token, Reason: err.Error()}, nil
	}

	leg.Route = rq.Route
	leg.QuotedOut = rq.AmountOut
	if leg.QuotedOut == nil {
		leg.QuotedOut = new(uint256.Int)
	}
	leg.MinAmountOut = amount.MustBps(cfg.SlippageToleranceBps).Complement().Apply(leg.QuotedOut)
	return leg, nil, nil
}

// sortByDrift orders by descending absolute drift; ties keep basket order.
func sortByDrift(ps []*position) {
	sort.SliceStable(ps, func(i, j int) bool {
		ai, aj := ps[i].drift.Abs(), ps[j].drift.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return ps[i].order < ps[j].order
	})
}
