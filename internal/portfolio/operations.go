package portfolio

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/metrics"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
)

// BalanceReader reads on-chain token balances.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, account models.Address) (*uint256.Int, error)
}

func (p *Portfolio) authorize(ctx context.Context, caller models.Address) error {
	ok, err := p.orch.Authorized(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return orchestrator.ErrUnauthorized
	}
	return nil
}

// ReplaceBasket swaps the whole basket. It fails with orchestrator.ErrBusy
// while a rebalance is in flight.
func (p *Portfolio) ReplaceBasket(ctx context.Context, caller models.Address, entries []models.BasketEntry) error {
	if err := p.authorize(ctx, caller); err != nil {
		return err
	}
	if err := p.orch.Guard(func() error { return p.basket.ReplaceAll(entries) }); err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"portfolio": p.cfg.Name,
		"tokens":    len(entries),
	}).Info("basket replaced")
	p.persist(ctx)
	return nil
}

func (p *Portfolio) AppendBasket(ctx context.Context, caller models.Address, entries []models.BasketEntry) error {
	if err := p.authorize(ctx, caller); err != nil {
		return err
	}
	if err := p.orch.Guard(func() error { return p.basket.BulkAppend(entries) }); err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"portfolio": p.cfg.Name,
		"appended":  len(entries),
	}).Info("basket extended")
	p.persist(ctx)
	return nil
}

// Deposit credits gross minus the deposit fee, in the reference asset.
func (p *Portfolio) Deposit(ctx context.Context, caller models.Address, gross *uint256.Int) (*uint256.Int, error) {
	if gross == nil || gross.IsZero() {
		return nil, ErrInvalidAmount
	}

	var net, fee *uint256.Int
	err := p.orch.Guard(func() error {
		if p.basket.Len() == 0 {
			return rebalance.ErrEmptyBasket
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		var err error
		net, fee, err = p.ledger.Accrue(p.cfg.ReferenceAsset, gross, p.cfg.DepositFeeBps)
		if err != nil {
			return err
		}
		p.holdings.credit(p.cfg.ReferenceAsset, net, p.cfg.ReferenceDecimals)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"portfolio": p.cfg.Name,
		"caller":    caller.Hex(),
		"gross":     gross.Dec(),
		"fee":       fee.Dec(),
		"net":       net.Dec(),
	}).Info("deposit accepted")
	p.persist(ctx)
	return net, nil
}

// Withdraw debits gross reference units and returns what the caller
// receives after the withdrawal fee.
func (p *Portfolio) Withdraw(ctx context.Context, caller models.Address, gross *uint256.Int) (*uint256.Int, error) {
	if gross == nil || gross.IsZero() {
		return nil, ErrInvalidAmount
	}
	if err := p.authorize(ctx, caller); err != nil {
		return nil, err
	}

	var net, fee *uint256.Int
	err := p.orch.Guard(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		have := p.holdings.get(p.cfg.ReferenceAsset)
		if have.Lt(gross) {
			return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, have.Dec(), gross.Dec())
		}

		var err error
		net, fee, err = p.ledger.Accrue(p.cfg.ReferenceAsset, gross, p.cfg.WithdrawalFeeBps)
		if err != nil {
			return err
		}
		p.holdings.debit(p.cfg.ReferenceAsset, gross)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"portfolio": p.cfg.Name,
		"caller":    caller.Hex(),
		"gross":     gross.Dec(),
		"fee":       fee.Dec(),
		"net":       net.Dec(),
	}).Info("withdrawal paid")
	p.persist(ctx)
	return net, nil
}

// WithdrawFees pays the whole accrued balance of asset to to. Owner only.
func (p *Portfolio) WithdrawFees(ctx context.Context, caller, asset, to models.Address) (models.FeeWithdrawal, error) {
	w, err := p.ledger.Withdraw(caller, asset, to)
	if err != nil {
		return w, err
	}
	metrics.FeeWithdrawals.Inc()

	p.logger.WithFields(logrus.Fields{
		"portfolio": p.cfg.Name,
		"asset":     asset.Hex(),
		"amount":    w.Amount.Dec(),
		"recipient": to.Hex(),
	}).Info("fees withdrawn")

	p.recordFeeWithdrawal(ctx, &w)
	p.persist(ctx)
	return w, nil
}

func (p *Portfolio) SetSlippageTolerance(ctx context.Context, caller models.Address, bps uint16) error {
	if caller != p.cfg.Owner {
		return orchestrator.ErrUnauthorized
	}
	if err := p.calc.SetSlippageTolerance(bps); err != nil {
		return err
	}
	p.persist(ctx)
	return nil
}

func (p *Portfolio) Pause(ctx context.Context, caller models.Address) error {
	return p.orch.Pause(ctx, caller)
}

func (p *Portfolio) Unpause(ctx context.Context, caller models.Address) error {
	return p.orch.Unpause(ctx, caller)
}

func (p *Portfolio) Paused(ctx context.Context) (bool, error) {
	return p.orch.Paused(ctx)
}

func (p *Portfolio) Whitelist(ctx context.Context, caller, addr models.Address) error {
	return p.orch.Whitelist(ctx, caller, addr)
}

func (p *Portfolio) Unwhitelist(ctx context.Context, caller, addr models.Address) error {
	return p.orch.Unwhitelist(ctx, caller, addr)
}

// SyncBalances replaces the balances of the basket tokens and the
// reference asset with what account holds on chain. All reads happen
// before anything is written.
func (p *Portfolio) SyncBalances(ctx context.Context, caller models.Address, reader BalanceReader, account models.Address) error {
	if err := p.authorize(ctx, caller); err != nil {
		return err
	}

	tokens := []models.Address{p.cfg.ReferenceAsset}
	for _, e := range p.basket.Entries() {
		if e.Token != p.cfg.ReferenceAsset {
			tokens = append(tokens, e.Token)
		}
	}

	balances := make([]*uint256.Int, len(tokens))
	for i, tok := range tokens {
		bal, err := reader.BalanceOf(ctx, tok, account)
		if err != nil {
			return fmt.Errorf("sync %s: %w", tok.Hex(), err)
		}
		balances[i] = bal
	}

	err := p.orch.Guard(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, tok := range tokens {
			p.holdings.set(tok, balances[i], p.decimalsOf(tok))
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"portfolio": p.cfg.Name,
		"account":   account.Hex(),
		"tokens":    len(tokens),
	}).Info("balances synced")
	p.persist(ctx)
	return nil
}
