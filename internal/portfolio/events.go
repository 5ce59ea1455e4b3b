package portfolio

import (
	"context"
	"time"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
)

func (p *Portfolio) sideCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), constants.StoreTimeout)
}

// recordRebalance publishes and stores one event per issued leg plus a
// summary. Nothing here fails the rebalance.
func (p *Portfolio) recordRebalance(ctx context.Context, caller models.Address, plan *rebalance.Plan, report *orchestrator.ExecutionReport) {
	if report == nil || (p.deps.Events == nil && p.deps.History == nil) {
		return
	}
	ctx, cancel := p.sideCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	events := make([]*models.LegEvent, 0, len(report.Completed)+1)
	for _, res := range report.Completed {
		ev := legEvent(p.cfg.Name, plan.ID, res.Leg, now)
		ev.AmountOut = res.AmountOut
		ev.Success = true
		events = append(events, ev)
	}
	if report.Failure != nil && len(report.NotExecuted) > 0 {
		ev := legEvent(p.cfg.Name, plan.ID, report.NotExecuted[0], now)
		ev.Error = report.Failure.Err.Error()
		events = append(events, ev)
	}

	log := p.logger.WithField("plan_id", plan.ID)
	for _, ev := range events {
		if p.deps.Events != nil {
			if err := p.deps.Events.PublishLeg(ctx, ev); err != nil {
				log.WithError(err).Warn("failed to publish leg event")
			}
		}
		if p.deps.History != nil {
			if err := p.deps.History.InsertLeg(ctx, ev); err != nil {
				log.WithError(err).Warn("failed to store leg event")
			}
		}
	}

	if p.deps.Events != nil {
		summary := &models.RebalanceEvent{
			RebalanceID: plan.ID,
			Portfolio:   p.cfg.Name,
			Caller:      caller,
			State:       report.State.String(),
			Completed:   len(report.Completed),
			NotExecuted: len(report.NotExecuted),
			Warnings:    plan.WarningStrings(),
			Timestamp:   now,
		}
		if err := p.deps.Events.PublishRebalance(ctx, summary); err != nil {
			log.WithError(err).Warn("failed to publish rebalance event")
		}
	}
}

func (p *Portfolio) recordFeeWithdrawal(ctx context.Context, w *models.FeeWithdrawal) {
	ctx, cancel := p.sideCtx(ctx)
	defer cancel()

	if p.deps.Events != nil {
		if err := p.deps.Events.PublishFeeWithdrawal(ctx, p.cfg.Name, w); err != nil {
			p.logger.WithError(err).Warn("failed to publish fee withdrawal")
		}
	}
	if p.deps.History != nil {
		if err := p.deps.History.InsertFeeWithdrawal(ctx, p.cfg.Name, w); err != nil {
			p.logger.WithError(err).Warn("failed to store fee withdrawal")
		}
	}
}
