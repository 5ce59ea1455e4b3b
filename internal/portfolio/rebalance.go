package portfolio

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
)

// RebalanceResult carries the plan that was computed and, when any leg was
// issued, the execution report.
type RebalanceResult struct {
	Plan   *rebalance.Plan               `json:"plan"`
	Report *orchestrator.ExecutionReport `json:"report,omitempty"`
}

// PreviewPlan computes a plan against current holdings without touching
// orchestrator state.
func (p *Portfolio) PreviewPlan(ctx context.Context) (*rebalance.Plan, error) {
	return p.calc.ComputePlan(ctx, p.Holdings(), p.basket.Entries(), p.deps.Resolver)
}

// Rebalance plans and executes one rebalance. An empty plan, or a planning
// error, abandons the invocation without issuing anything. A settlement
// failure returns a *orchestrator.SettlementError together with the result,
// whose report lists the legs that settled and the ones never issued.
func (p *Portfolio) Rebalance(ctx context.Context, caller models.Address) (*RebalanceResult, error) {
	if err := p.orch.Begin(ctx, caller); err != nil {
		return nil, err
	}

	log := p.logger.WithFields(logrus.Fields{
		"portfolio": p.cfg.Name,
		"caller":    caller.Hex(),
	})

	plan, err := p.calc.ComputePlan(ctx, p.Holdings(), p.basket.Entries(), p.deps.Resolver)
	if err != nil {
		_ = p.orch.Abandon()
		log.WithError(err).Warn("rebalance planning failed")
		return nil, err
	}

	result := &RebalanceResult{Plan: plan}
	log = log.WithField("plan_id", plan.ID)

	if plan.Empty() {
		_ = p.orch.Abandon()
		log.WithField("warnings", len(plan.Warnings)).Info("portfolio within threshold, nothing to trade")
		return result, nil
	}

	log.WithFields(logrus.Fields{
		"legs":        len(plan.Legs),
		"warnings":    len(plan.Warnings),
		"total_value": plan.TotalValue.String(),
	}).Info("rebalance plan computed")

	report, err := p.orch.Execute(ctx, plan)
	result.Report = report

	p.recordRebalance(ctx, caller, plan, report)
	p.persist(ctx)

	if err != nil {
		log.WithError(err).Error("rebalance stopped")
		return result, err
	}
	log.WithField("completed", len(report.Completed)).Info("rebalance completed")
	return result, nil
}

// applyLeg moves one settled leg's amounts between holdings.
func (p *Portfolio) applyLeg(res orchestrator.LegResult) {
	leg := res.Leg

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.holdings.debit(leg.From, leg.AmountIn.Raw) {
		p.logger.WithFields(logrus.Fields{
			"portfolio": p.cfg.Name,
			"token":     leg.From.Hex(),
			"amount_in": leg.AmountIn.Raw.Dec(),
		}).Warn("settled leg spent more than the recorded balance")
		p.holdings.set(leg.From, new(uint256.Int), leg.AmountIn.Decimals)
	}
	p.holdings.credit(leg.To, res.AmountOut, leg.OutDecimals)
}

func legEvent(portfolio, planID string, leg rebalance.Leg, at time.Time) *models.LegEvent {
	return &models.LegEvent{
		RebalanceID:  planID,
		Portfolio:    portfolio,
		Index:        leg.Index,
		Token:        leg.Token,
		Direction:    leg.Direction,
		Venue:        leg.Route.Venue,
		AmountIn:     leg.AmountIn.Raw,
		MinAmountOut: leg.MinAmountOut,
		Timestamp:    at,
	}
}
