package portfolio

import (
	"github.com/holiman/uint256"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
)

type holding struct {
	balance  *uint256.Int
	decimals uint8
}

// book is a token balance sheet that remembers first-seen order. Callers
// hold Portfolio.mu.
type book struct {
	order []models.Address
	items map[models.Address]*holding
}

func newBook() *book {
	return &book{items: make(map[models.Address]*holding)}
}

func (b *book) entry(token models.Address, decimals uint8) *holding {
	h, ok := b.items[token]
	if !ok {
		h = &holding{balance: new(uint256.Int), decimals: decimals}
		b.items[token] = h
		b.order = append(b.order, token)
	}
	return h
}

func (b *book) get(token models.Address) *uint256.Int {
	if h, ok := b.items[token]; ok {
		return new(uint256.Int).Set(h.balance)
	}
	return new(uint256.Int)
}

func (b *book) set(token models.Address, v *uint256.Int, decimals uint8) {
	h := b.entry(token, decimals)
	h.balance = new(uint256.Int).Set(v)
	h.decimals = decimals
}

func (b *book) credit(token models.Address, v *uint256.Int, decimals uint8) {
	h := b.entry(token, decimals)
	h.balance = new(uint256.Int).Add(h.balance, v)
}

// debit returns false, leaving the book unchanged, when the balance is
// short.
func (b *book) debit(token models.Address, v *uint256.Int) bool {
	h, ok := b.items[token]
	if !ok {
		return v.IsZero()
	}
	if h.balance.Lt(v) {
		return false
	}
	h.balance = new(uint256.Int).Sub(h.balance, v)
	return true
}

// list puts the basket's tokens first, in basket order.
func (b *book) list(entries []models.BasketEntry) []rebalance.Holding {
	out := make([]rebalance.Holding, 0, len(b.items))
	seen := make(map[models.Address]bool, len(entries))
	for _, e := range entries {
		if h, ok := b.items[e.Token]; ok {
			out = append(out, rebalance.Holding{Token: e.Token, Balance: new(uint256.Int).Set(h.balance), Decimals: h.decimals})
			seen[e.Token] = true
		}
	}
	for _, tok := range b.order {
		if seen[tok] {
			continue
		}
		h := b.items[tok]
		out = append(out, rebalance.Holding{Token: tok, Balance: new(uint256.Int).Set(h.balance), Decimals: h.decimals})
	}
	return out
}

func (b *book) records() []models.HoldingRecord {
	out := make([]models.HoldingRecord, 0, len(b.order))
	for _, tok := range b.order {
		h := b.items[tok]
		out = append(out, models.HoldingRecord{Token: tok, Balance: h.balance.Dec(), Decimals: h.decimals})
	}
	return out
}
