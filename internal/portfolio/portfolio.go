// Package portfolio ties a basket, its holdings, the fee ledger and the
// rebalance orchestrator into one explicit state object per portfolio.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/basket"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/fees"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/storage"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Names double as Redis key segments.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// Config is the immutable identity of a portfolio plus its initial basket.
type Config struct {
	Name   string         `json:"name"`
	Symbol string         `json:"symbol"`
	Owner  models.Address `json:"owner"`

	ReferenceAsset    models.Address `json:"referenceAsset"`
	ReferenceDecimals uint8          `json:"referenceDecimals"`

	DepositFeeBps        uint16 `json:"depositFeeBps"`
	WithdrawalFeeBps     uint16 `json:"withdrawalFeeBps"`
	SlippageToleranceBps uint16 `json:"slippageToleranceBps"`
	MinDriftBps          uint16 `json:"minDriftBps"`

	Basket []models.BasketEntry `json:"basket,omitempty"`
}

func (c Config) Validate() error {
	if !nameRe.MatchString(c.Name) {
		return fmt.Errorf("%w: portfolio name %q", basket.ErrValidation, c.Name)
	}
	if c.Owner == (models.Address{}) {
		return fmt.Errorf("%w: owner is required", basket.ErrValidation)
	}
	if c.DepositFeeBps > amount.BpsDenominator || c.WithdrawalFeeBps > amount.BpsDenominator {
		return fmt.Errorf("%w: fee above 100%%", basket.ErrValidation)
	}
	return c.rebalanceConfig().Validate()
}

func (c Config) rebalanceConfig() rebalance.Config {
	return rebalance.Config{
		ReferenceAsset:       c.ReferenceAsset,
		ReferenceDecimals:    c.ReferenceDecimals,
		SlippageToleranceBps: c.SlippageToleranceBps,
		MinDriftBps:          c.MinDriftBps,
	}
}

// Deps are the collaborators a portfolio talks to. Store, Events and
// History are optional; when set they are written best-effort.
type Deps struct {
	Resolver resolver.RouteResolver
	Settler  orchestrator.Settler
	Controls orchestrator.Controls
	Store    storage.StateStore
	Events   storage.EventPublisher
	History  storage.HistoryStore
	Logger   *logrus.Logger
}

type Portfolio struct {
	cfg    Config
	deps   Deps
	logger *logrus.Logger

	basket *basket.Registry
	ledger *fees.Ledger
	calc   *rebalance.Calculator
	orch   *orchestrator.Orchestrator

	mu       sync.RWMutex
	holdings *book
}

func New(cfg Config, deps Deps) (*Portfolio, error) {
	if deps.Resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	calc, err := rebalance.NewCalculator(cfg.rebalanceConfig(), deps.Logger)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		basket:   basket.NewRegistry(),
		ledger:   fees.NewLedger(cfg.Owner),
		calc:     calc,
		holdings: newBook(),
	}

	p.orch, err = orchestrator.New(orchestrator.Config{
		Owner:     cfg.Owner,
		Settler:   deps.Settler,
		Controls:  deps.Controls,
		Logger:    deps.Logger,
		OnSettled: p.applyLeg,
	})
	if err != nil {
		return nil, err
	}

	if len(cfg.Basket) > 0 {
		if err := p.basket.ReplaceAll(cfg.Basket); err != nil {
			return nil, fmt.Errorf("initial basket: %w", err)
		}
	}
	p.cfg.Basket = nil
	return p, nil
}

func (p *Portfolio) Name() string { return p.cfg.Name }

func (p *Portfolio) Owner() models.Address { return p.cfg.Owner }

func (p *Portfolio) Config() Config {
	c := p.cfg
	c.SlippageToleranceBps = p.calc.Config().SlippageToleranceBps
	c.Basket = p.basket.Entries()
	return c
}

func (p *Portfolio) State() orchestrator.State {
	return p.orch.State()
}

func (p *Portfolio) Basket() []models.BasketEntry {
	return p.basket.Entries()
}

func (p *Portfolio) Weights() []basket.TokenWeight {
	return p.basket.Weights()
}

// Holdings returns basket tokens first, in basket order, then anything else
// held.
func (p *Portfolio) Holdings() []rebalance.Holding {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.holdings.list(p.basket.Entries())
}

func (p *Portfolio) Balance(token models.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.holdings.get(token)
}

func (p *Portfolio) AccruedFees(asset models.Address) *uint256.Int {
	return p.ledger.Balance(asset)
}

// Snapshot is the durable form of the portfolio.
func (p *Portfolio) Snapshot() *models.PortfolioState {
	p.mu.RLock()
	records := p.holdings.records()
	p.mu.RUnlock()

	return &models.PortfolioState{
		Name:                 p.cfg.Name,
		Symbol:               p.cfg.Symbol,
		Owner:                p.cfg.Owner,
		ReferenceAsset:       p.cfg.ReferenceAsset,
		ReferenceDecimals:    p.cfg.ReferenceDecimals,
		DepositFeeBps:        p.cfg.DepositFeeBps,
		WithdrawalFeeBps:     p.cfg.WithdrawalFeeBps,
		MinDriftBps:          p.cfg.MinDriftBps,
		Basket:               p.basket.Entries(),
		Holdings:             records,
		Fees:                 p.ledger.Snapshot(),
		SlippageToleranceBps: p.calc.Config().SlippageToleranceBps,
	}
}

// Restore loads holdings, fees and slippage from a snapshot. The basket
// is restored through the registry and must still satisfy its invariant.
func (p *Portfolio) Restore(st *models.PortfolioState) error {
	if st == nil {
		return nil
	}
	return p.orch.Guard(func() error {
		next := newBook()
		for _, r := range st.Holdings {
			bal, err := uint256.FromDecimal(r.Balance)
			if err != nil {
				return fmt.Errorf("%w: holding %s balance %q", amount.ErrPrecision, r.Token.Hex(), r.Balance)
			}
			next.set(r.Token, bal, r.Decimals)
		}
		if len(st.Basket) > 0 {
			if err := p.basket.ReplaceAll(st.Basket); err != nil {
				return fmt.Errorf("restore basket: %w", err)
			}
		}
		if err := p.ledger.Restore(st.Fees); err != nil {
			return err
		}
		if st.SlippageToleranceBps > 0 {
			if err := p.calc.SetSlippageTolerance(st.SlippageToleranceBps); err != nil {
				return err
			}
		}

		p.mu.Lock()
		p.holdings = next
		p.mu.Unlock()
		return nil
	})
}

// persist writes the snapshot when a store is configured. Failures are
// logged, not returned.
func (p *Portfolio) persist(ctx context.Context) {
	if p.deps.Store == nil {
		return
	}
	ctx, cancel := p.sideCtx(ctx)
	defer cancel()

	if err := p.deps.Store.SaveState(ctx, p.Snapshot()); err != nil {
		p.logger.WithError(err).WithField("portfolio", p.cfg.Name).Warn("failed to persist portfolio state")
	}
}

func (p *Portfolio) decimalsOf(token models.Address) uint8 {
	if token == p.cfg.ReferenceAsset {
		return p.cfg.ReferenceDecimals
	}
	if e, _, ok := p.basket.Entry(token); ok {
		return e.Decimals
	}
	return basket.DefaultDecimals
}
