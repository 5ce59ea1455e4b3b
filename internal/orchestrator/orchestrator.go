// Package orchestrator gates who may rebalance a portfolio and issues a
// plan's legs to the settlement layer strictly in order.
//
//	Idle -> Planning -> Executing -> Idle
//	                              \-> Failed -> Planning (re-plan)
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/metrics"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/swappath"
)

type Config struct {
	Owner    models.Address
	Settler  Settler
	Controls Controls
	Logger   *logrus.Logger

	// OnSettled, when set, runs after each settled leg before the next one
	// is issued.
	OnSettled func(LegResult)
}

// Orchestrator allows one rebalance in Planning or Executing at a time.
type Orchestrator struct {
	owner    models.Address
	settler  Settler
	controls Controls
	onSettle func(LegResult)
	logger   *logrus.Logger

	mu    sync.Mutex
	state State
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Settler == nil {
		return nil, fmt.Errorf("settler is nil")
	}
	if cfg.Owner == (models.Address{}) {
		return nil, fmt.Errorf("owner is required")
	}
	if cfg.Controls == nil {
		cfg.Controls = NewMemoryControls()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Orchestrator{
		owner:    cfg.Owner,
		settler:  cfg.Settler,
		controls: cfg.Controls,
		onSettle: cfg.OnSettled,
		logger:   cfg.Logger,
		state:    StateIdle,
	}, nil
}

func (o *Orchestrator) Owner() models.Address {
	return o.owner
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Authorized reports whether caller is the owner or whitelisted.
func (o *Orchestrator) Authorized(ctx context.Context, caller models.Address) (bool, error) {
	if caller == o.owner {
		return true, nil
	}
	ok, err := o.controls.IsWhitelisted(ctx, caller)
	if err != nil {
		return false, fmt.Errorf("whitelist lookup: %w", err)
	}
	return ok, nil
}

// Begin moves Idle or Failed to Planning.
func (o *Orchestrator) Begin(ctx context.Context, caller models.Address) error {
	ok, err := o.Authorized(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		metrics.RejectedInvocations.WithLabelValues("unauthorized").Inc()
		return ErrUnauthorized
	}

	paused, err := o.controls.Paused(ctx)
	if err != nil {
		return fmt.Errorf("pause lookup: %w", err)
	}
	if paused {
		metrics.RejectedInvocations.WithLabelValues("paused").Inc()
		return ErrPaused
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StatePlanning || o.state == StateExecuting {
		metrics.RejectedInvocations.WithLabelValues("busy").Inc()
		return ErrBusy
	}
	o.setState(StatePlanning)
	return nil
}

// Abandon discards a plan that was never executed.
func (o *Orchestrator) Abandon() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePlanning {
		return ErrNotPlanning
	}
	o.setState(StateIdle)
	return nil
}

// Guard runs fn only when no rebalance is Planning or Executing, and keeps
// new rebalances out until fn returns. fn must not call back into o.
func (o *Orchestrator) Guard(fn func() error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StatePlanning || o.state == StateExecuting {
		return ErrBusy
	}
	return fn()
}

type encodedLeg struct {
	leg  rebalance.Leg
	path swappath.EncodedPath
}

// Execute issues every leg of plan in order. The first failing leg stops
// the invocation and leaves the orchestrator Failed; nothing is retried.
// Every leg is encoded before the first one is issued, so a bad route
// returns the orchestrator to Idle with nothing settled.
func (o *Orchestrator) Execute(ctx context.Context, plan *rebalance.Plan) (*ExecutionReport, error) {
	o.mu.Lock()
	if o.state != StatePlanning {
		o.mu.Unlock()
		return nil, ErrNotPlanning
	}
	o.setState(StateExecuting)
	o.mu.Unlock()

	report := &ExecutionReport{
		Completed:   []LegResult{},
		NotExecuted: []rebalance.Leg{},
	}
	if plan != nil {
		report.PlanID = plan.ID
	}

	legs, err := o.encode(plan)
	if err != nil {
		o.finish(StateIdle)
		report.State = StateIdle
		report.Error = err.Error()
		return report, err
	}

	log := o.logger.WithField("plan_id", report.PlanID)

	for i, el := range legs {
		out, err := o.settle(ctx, el)
		if err != nil {
			failure := &SettlementError{Leg: el.leg.Index, Token: el.leg.Token, Err: err}
			for _, rest := range legs[i:] {
				report.NotExecuted = append(report.NotExecuted, rest.leg)
			}
			report.Failure = failure
			report.Error = failure.Error()
			report.State = StateFailed

			log.WithError(err).WithFields(logrus.Fields{
				"leg":          el.leg.Index,
				"token":        el.leg.Token.Hex(),
				"not_executed": len(report.NotExecuted),
			}).Error("rebalance leg failed")

			o.finish(StateFailed)
			return report, failure
		}

		res := LegResult{
			Leg:       el.leg,
			Path:      el.path,
			PathHex:   el.path.Hex(),
			AmountOut: out,
		}
		report.Completed = append(report.Completed, res)
		if o.onSettle != nil {
			o.onSettle(res)
		}

		log.WithFields(logrus.Fields{
			"leg":        el.leg.Index,
			"token":      el.leg.Token.Hex(),
			"direction":  el.leg.Direction,
			"amount_in":  el.leg.AmountIn.String(),
			"amount_out": out.Dec(),
		}).Info("rebalance leg settled")
	}

	o.finish(StateIdle)
	report.State = StateIdle
	return report, nil
}

func (o *Orchestrator) encode(plan *rebalance.Plan) ([]encodedLeg, error) {
	if plan == nil {
		return nil, nil
	}
	out := make([]encodedLeg, 0, len(plan.Legs))
	for _, leg := range plan.Legs {
		p, err := swappath.Encode(leg.Route)
		if err != nil {
			return nil, fmt.Errorf("encode leg %d: %w", leg.Index, err)
		}
		out = append(out, encodedLeg{leg: leg, path: p})
	}
	return out, nil
}

func (o *Orchestrator) settle(ctx context.Context, el encodedLeg) (*uint256.Int, error) {
	venue := el.path.Venue.String()
	direction := string(el.leg.Direction)

	start := time.Now()
	out, err := o.settler.Settle(ctx, models.SettlementCall{
		Venue:        el.path.Venue,
		Path:         el.path.Bytes,
		AmountIn:     el.leg.AmountIn.Raw,
		MinAmountOut: el.leg.MinAmountOut,
	})
	metrics.SettleDuration.WithLabelValues(venue).Observe(time.Since(start).Seconds())

	if err == nil && out == nil {
		err = fmt.Errorf("%w: settler returned no amount", ErrReverted)
	}
	if err == nil && el.leg.MinAmountOut != nil && out.Lt(el.leg.MinAmountOut) {
		err = fmt.Errorf("%w: got %s, minimum %s", ErrSlippage, out.Dec(), el.leg.MinAmountOut.Dec())
	}
	if err != nil {
		metrics.LegsSettled.WithLabelValues(venue, direction, "failed").Inc()
		return nil, err
	}
	metrics.LegsSettled.WithLabelValues(venue, direction, "ok").Inc()
	return out, nil
}

func (o *Orchestrator) finish(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setState(s)
}

// setState must be called with o.mu held.
func (o *Orchestrator) setState(s State) {
	o.state = s
	metrics.OrchestratorTransitions.WithLabelValues(s.String()).Inc()
}

func (o *Orchestrator) requireOwner(caller models.Address) error {
	if caller != o.owner {
		return ErrUnauthorized
	}
	return nil
}

// Pause stops new rebalances from entering Planning. In-flight work is not
// affected.
func (o *Orchestrator) Pause(ctx context.Context, caller models.Address) error {
	if err := o.requireOwner(caller); err != nil {
		return err
	}
	return o.controls.SetPaused(ctx, true)
}

func (o *Orchestrator) Unpause(ctx context.Context, caller models.Address) error {
	if err := o.requireOwner(caller); err != nil {
		return err
	}
	return o.controls.SetPaused(ctx, false)
}

func (o *Orchestrator) Paused(ctx context.Context) (bool, error) {
	return o.controls.Paused(ctx)
}

func (o *Orchestrator) Whitelist(ctx context.Context, caller, addr models.Address) error {
	if err := o.requireOwner(caller); err != nil {
		return err
	}
	return o.controls.Whitelist(ctx, addr)
}

func (o *Orchestrator) Unwhitelist(ctx context.Context, caller, addr models.Address) error {
	if err := o.requireOwner(caller); err != nil {
		return err
	}
	return o.controls.Unwhitelist(ctx, addr)
}
