// Package basket holds the ordered set of tokens a portfolio targets, with
// the invariant that target weights always sum to exactly 10_000 bps.
package basket

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

var (
	ErrValidation = errors.New("basket validation failed")

	ErrWeightSum      = fmt.Errorf("%w: weights must sum to %d bps", ErrValidation, amount.BpsDenominator)
	ErrWeightOverflow = fmt.Errorf("%w: weights exceed %d bps", ErrValidation, amount.BpsDenominator)
	ErrDuplicateToken = fmt.Errorf("%w: duplicate token", ErrValidation)
	ErrLengthMismatch = fmt.Errorf("%w: list lengths differ", ErrValidation)
	ErrInvalidEntry   = fmt.Errorf("%w: invalid entry", ErrValidation)
)

// DefaultDecimals is used for entries configured without a decimal count.
const DefaultDecimals = 18

// TokenWeight is one (token, weight) pair in basket order.
type TokenWeight struct {
	Token     models.Address `json:"token"`
	WeightBps uint16         `json:"weightBps"`
}

// Registry is a mutex-protected basket. A zero Registry is an empty basket.
type Registry struct {
	mu      sync.RWMutex
	entries []models.BasketEntry
	index   map[models.Address]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[models.Address]int)}
}

// ReplaceAll atomically swaps the whole basket. The previous basket is kept
// untouched when entries are rejected.
func (r *Registry) ReplaceAll(entries []models.BasketEntry) error {
	next, index, err := build(nil, entries)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.entries = next
	r.index = index
	r.mu.Unlock()
	return nil
}

// BulkAppend adds entries after the existing ones. The running weight may
// never pass 10_000 bps and the final basket must sum to exactly 10_000.
func (r *Registry) BulkAppend(entries []models.BasketEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, index, err := build(r.entries, entries)
	if err != nil {
		return err
	}
	r.entries = next
	r.index = index
	return nil
}

// build validates base+extra into fresh storage without touching base.
func build(base, extra []models.BasketEntry) ([]models.BasketEntry, map[models.Address]int, error) {
	total := 0
	out := make([]models.BasketEntry, 0, len(base)+len(extra))
	index := make(map[models.Address]int, len(base)+len(extra))

	add := func(e models.BasketEntry) error {
		if err := validateEntry(e); err != nil {
			return err
		}
		if _, dup := index[e.Token]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateToken, e.Token.Hex())
		}
		total += int(e.TargetWeightBps)
		if total > amount.BpsDenominator {
			return fmt.Errorf("%w: running total %d at %s", ErrWeightOverflow, total, e.Token.Hex())
		}
		index[e.Token] = len(out)
		out = append(out, e.Normalized())
		return nil
	}

	for _, e := range base {
		if err := add(e); err != nil {
			return nil, nil, err
		}
	}
	for _, e := range extra {
		if err := add(e); err != nil {
			return nil, nil, err
		}
	}

	if total != amount.BpsDenominator {
		return nil, nil, fmt.Errorf("%w: got %d", ErrWeightSum, total)
	}
	return out, index, nil
}

func validateEntry(e models.BasketEntry) error {
	if e.Token == (models.Address{}) {
		return fmt.Errorf("%w: zero token address", ErrInvalidEntry)
	}
	if !e.Venue.Valid() {
		return fmt.Errorf("%w: %s has unsupported venue %d", ErrInvalidEntry, e.Token.Hex(), uint8(e.Venue))
	}
	if e.Decimals > amount.MaxDecimals {
		return fmt.Errorf("%w: %s has %d decimals", ErrInvalidEntry, e.Token.Hex(), e.Decimals)
	}
	return nil
}

// Weights returns (token, weight) pairs in insertion order.
func (r *Registry) Weights() []TokenWeight {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TokenWeight, len(r.entries))
	for i, e := range r.entries {
		out[i] = TokenWeight{Token: e.Token, WeightBps: e.TargetWeightBps}
	}
	return out
}

// Entries returns a copy of the basket in insertion order.
func (r *Registry) Entries() []models.BasketEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.BasketEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entry looks up a token. The int is its insertion position.
func (r *Registry) Entry(token models.Address) (models.BasketEntry, int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[token]
	if !ok {
		return models.BasketEntry{}, -1, false
	}
	return r.entries[i], i, true
}
