// Package keeper rebalances every portfolio on a fixed interval.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/metrics"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/portfolio"
)

// Run results, also used as metric labels.
const (
	ResultRebalanced = "rebalanced"
	ResultNoop       = "noop"
	ResultPaused     = "paused"
	ResultLimited    = "limited"
	ResultRejected   = "rejected"
	ResultSyncFailed = "sync_failed"
	ResultFailed     = "failed"
)

// Config holds configuration for the keeper
type Config struct {
	Factory  *portfolio.Factory
	Caller   models.Address // must be the owner or whitelisted on each portfolio
	Interval time.Duration
	Limits   Limits

	// Balances and Account enable a chain balance sync before each run.
	Balances portfolio.BalanceReader
	Account  models.Address

	Logger *logrus.Logger
	Now    func() time.Time
}

// Outcome is one portfolio's result for one tick.
type Outcome struct {
	Portfolio string
	Result    string
	Reason    string
	Err       error
}

type Keeper struct {
	cfg     Config
	tracker *DailyTracker
	logger  *logrus.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func New(cfg Config) (*Keeper, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("keeper needs a portfolio factory")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("keeper interval must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Keeper{
		cfg:     cfg,
		tracker: NewDailyTracker(),
		logger:  cfg.Logger,
	}, nil
}

// Start runs a tick every interval until ctx is done or Stop is called.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return fmt.Errorf("keeper already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	k.running = true
	k.cancel = cancel
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.running = false
		k.cancel = nil
		k.mu.Unlock()
		cancel()
	}()

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	k.logger.WithFields(logrus.Fields{
		"interval": k.cfg.Interval,
		"caller":   k.cfg.Caller.Hex(),
	}).Info("starting keeper")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.RunOnce(ctx)
		}
	}
}

// Stop ends a running Start loop
func (k *Keeper) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		k.cancel()
	}
	return nil
}

// RunOnce tries one rebalance per portfolio, in name order.
func (k *Keeper) RunOnce(ctx context.Context) []Outcome {
	var zero models.Address
	list := k.cfg.Factory.List(zero)

	out := make([]Outcome, 0, len(list))
	for _, p := range list {
		if ctx.Err() != nil {
			break
		}
		o := k.run(ctx, p)
		metrics.KeeperRuns.WithLabelValues(o.Result).Inc()

		entry := k.logger.WithFields(logrus.Fields{
			"portfolio": o.Portfolio,
			"result":    o.Result,
		})
		switch {
		case o.Err != nil:
			entry.WithError(o.Err).Warn("keeper run")
		case o.Result == ResultRebalanced:
			entry.Info("keeper run")
		default:
			entry.WithField("reason", o.Reason).Debug("keeper run")
		}
		out = append(out, o)
	}
	return out
}

func (k *Keeper) run(ctx context.Context, p *portfolio.Portfolio) Outcome {
	o := Outcome{Portfolio: p.Name()}

	paused, err := p.Paused(ctx)
	if err != nil {
		o.Result, o.Err = ResultFailed, err
		return o
	}
	if paused {
		o.Result = ResultPaused
		return o
	}

	now := k.cfg.Now()
	if d := k.cfg.Limits.Check(k.tracker, o.Portfolio, now); !d.Allowed {
		o.Result, o.Reason = ResultLimited, d.Reason
		return o
	}

	if k.cfg.Balances != nil && k.cfg.Account != (models.Address{}) {
		if err := p.SyncBalances(ctx, k.cfg.Caller, k.cfg.Balances, k.cfg.Account); err != nil {
			o.Result, o.Err = ResultSyncFailed, err
			return o
		}
	}

	res, err := p.Rebalance(ctx, k.cfg.Caller)
	switch {
	case errors.Is(err, orchestrator.ErrPaused), errors.Is(err, orchestrator.ErrBusy):
		o.Result, o.Reason = ResultRejected, err.Error()
	case errors.Is(err, orchestrator.ErrUnauthorized):
		o.Result, o.Err = ResultRejected, err
	case err != nil:
		// a settlement failure still traded the legs before it
		if res != nil && res.Report != nil && len(res.Report.Completed) > 0 {
			k.tracker.Record(o.Portfolio, now)
		}
		o.Result, o.Err = ResultFailed, err
	case res.Report == nil:
		o.Result = ResultNoop
		if len(res.Plan.Warnings) > 0 {
			o.Reason = fmt.Sprintf("%d warnings", len(res.Plan.Warnings))
		}
	default:
		k.tracker.Record(o.Portfolio, now)
		o.Result = ResultRebalanced
	}
	return o
}
