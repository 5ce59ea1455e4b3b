package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/storage"
)

var (
	ErrExists   = errors.New("portfolio already exists")
	ErrNotFound = errors.New("portfolio not found")
)

// FactoryDeps.Controls is ignored when ControlsFor is set.
type FactoryDeps struct {
	Deps
	// ControlsFor builds the pause flag and whitelist for one portfolio.
	// Nil means in-memory controls.
	ControlsFor func(name string) (orchestrator.Controls, error)
}

// Factory creates and indexes portfolios by name.
type Factory struct {
	deps   FactoryDeps
	logger *logrus.Logger

	mu         sync.RWMutex
	portfolios map[string]*Portfolio
}

func NewFactory(deps FactoryDeps) *Factory {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	return &Factory{
		deps:       deps,
		logger:     deps.Logger,
		portfolios: make(map[string]*Portfolio),
	}
}

func (f *Factory) build(cfg Config) (*Portfolio, error) {
	deps := f.deps.Deps
	if f.deps.ControlsFor != nil {
		c, err := f.deps.ControlsFor(cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("controls for %s: %w", cfg.Name, err)
		}
		deps.Controls = c
	}
	return New(cfg, deps)
}

// Create registers a new portfolio and persists it.
func (f *Factory) Create(ctx context.Context, cfg Config) (*Portfolio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.portfolios[cfg.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, cfg.Name)
	}
	p, err := f.build(cfg)
	if err != nil {
		return nil, err
	}
	f.portfolios[cfg.Name] = p

	f.logger.WithFields(logrus.Fields{
		"portfolio": cfg.Name,
		"symbol":    cfg.Symbol,
		"owner":     cfg.Owner.Hex(),
		"tokens":    len(cfg.Basket),
	}).Info("portfolio created")

	p.persist(ctx)
	return p, nil
}

func (f *Factory) Get(name string) (*Portfolio, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.portfolios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// List returns portfolios sorted by name. A zero owner lists all of them.
func (f *Factory) List(owner models.Address) []*Portfolio {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*Portfolio, 0, len(f.portfolios))
	for _, p := range f.portfolios {
		if owner == (models.Address{}) || p.Owner() == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Load rebuilds every portfolio the state store knows about. Portfolios
// already registered are skipped.
func (f *Factory) Load(ctx context.Context) (int, error) {
	store := f.deps.Store
	if store == nil {
		return 0, nil
	}

	names, err := store.ListPortfolios(ctx)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, name := range names {
		if _, err := f.Get(name); err == nil {
			continue
		}

		st, err := store.LoadState(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return loaded, fmt.Errorf("load %s: %w", name, err)
		}

		p, err := f.build(Config{
			Name:                 st.Name,
			Symbol:               st.Symbol,
			Owner:                st.Owner,
			ReferenceAsset:       st.ReferenceAsset,
			ReferenceDecimals:    st.ReferenceDecimals,
			DepositFeeBps:        st.DepositFeeBps,
			WithdrawalFeeBps:     st.WithdrawalFeeBps,
			SlippageToleranceBps: st.SlippageToleranceBps,
			MinDriftBps:          st.MinDriftBps,
		})
		if err != nil {
			return loaded, fmt.Errorf("rebuild %s: %w", name, err)
		}
		if err := p.Restore(st); err != nil {
			return loaded, fmt.Errorf("restore %s: %w", name, err)
		}

		f.mu.Lock()
		f.portfolios[name] = p
		f.mu.Unlock()
		loaded++
	}

	f.logger.WithField("count", loaded).Info("portfolios loaded from state store")
	return loaded, nil
}
