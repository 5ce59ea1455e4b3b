// Package fees tracks protocol fees accrued on deposits and withdrawals,
// kept apart from portfolio principal.
package fees

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

var (
	ErrNotOwner          = errors.New("caller is not the owner")
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
)

// Fees are truncated toward zero, so rounding favors the depositor by at
// most one base unit.
const RoundingPolicy = "round-down"

// Ledger maps fee asset to accrued raw amount. Balances only grow, except
// through an owner withdrawal which resets an entry to zero.
type Ledger struct {
	owner models.Address
	now   func() time.Time

	mu      sync.Mutex
	accrued map[models.Address]*uint256.Int
}

func NewLedger(owner models.Address) *Ledger {
	return &Ledger{
		owner:   owner,
		now:     time.Now,
		accrued: make(map[models.Address]*uint256.Int),
	}
}

func (l *Ledger) Owner() models.Address {
	return l.owner
}

// Accrue charges feeBps of gross into the ledger and returns what remains
// for the underlying settlement.
func (l *Ledger) Accrue(asset models.Address, gross *uint256.Int, feeBps uint16) (net, fee *uint256.Int, err error) {
	ratio, err := amount.FromReadablePercent(feeBps)
	if err != nil {
		return nil, nil, err
	}
	if gross == nil {
		gross = new(uint256.Int)
	}

	fee = ratio.Apply(gross)
	net = new(uint256.Int).Sub(gross, fee)

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.accrued[asset]
	if !ok {
		cur = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(cur, fee)
	if overflow {
		return nil, nil, fmt.Errorf("%w: fee ledger overflow for %s", amount.ErrPrecision, asset.Hex())
	}
	l.accrued[asset] = next
	return net, fee, nil
}

// Withdraw pays the whole accrued balance of asset to the recipient.
func (l *Ledger) Withdraw(caller, asset, to models.Address) (models.FeeWithdrawal, error) {
	if caller != l.owner {
		return models.FeeWithdrawal{}, ErrNotOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.accrued[asset]
	if !ok || cur.IsZero() {
		return models.FeeWithdrawal{}, fmt.Errorf("%w: %s", ErrNothingToWithdraw, asset.Hex())
	}
	delete(l.accrued, asset)

	return models.FeeWithdrawal{
		Asset:     asset,
		Amount:    cur,
		Recipient: to,
		Timestamp: l.now().UTC(),
	}, nil
}

// Balance returns a copy of the accrued amount for asset.
func (l *Ledger) Balance(asset models.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.accrued[asset]; ok {
		return new(uint256.Int).Set(cur)
	}
	return new(uint256.Int)
}

// Snapshot copies all non-zero balances, keyed by hex address.
func (l *Ledger) Snapshot() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]string, len(l.accrued))
	for asset, v := range l.accrued {
		if v.IsZero() {
			continue
		}
		out[asset.Hex()] = v.Dec()
	}
	return out
}

// Restore replaces the ledger content with a Snapshot.
func (l *Ledger) Restore(snap map[string]string) error {
	next := make(map[models.Address]*uint256.Int, len(snap))
	for k, v := range snap {
		if !common.IsHexAddress(k) {
			return fmt.Errorf("fee snapshot: bad asset %q", k)
		}
		n, err := uint256.FromDecimal(v)
		if err != nil {
			return fmt.Errorf("%w: fee balance %q for %s", amount.ErrPrecision, v, k)
		}
		next[common.HexToAddress(k)] = n
	}

	l.mu.Lock()
	l.accrued = next
	l.mu.Unlock()
	return nil
}
