package resolver

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

type quoteResult struct {
	price decimal.Decimal
	err   error
}

// Snapshot memoizes quotes for the lifetime of one planning call, so the
// oracle is asked at most once per distinct pair and every valuation in the
// call sees the same price. Failed quotes are memoized too.
type Snapshot struct {
	inner RouteResolver

	mu     sync.Mutex
	quotes map[pair]quoteResult
}

func NewSnapshot(inner RouteResolver) *Snapshot {
	return &Snapshot{inner: inner, quotes: make(map[pair]quoteResult)}
}

func (s *Snapshot) Quote(ctx context.Context, base, quote models.Address) (decimal.Decimal, error) {
	key := pair{base, quote}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.quotes[key]; ok {
		return r.price, r.err
	}
	p, err := s.inner.Quote(ctx, base, quote)
	s.quotes[key] = quoteResult{price: p, err: err}
	return p, err
}

// Route is not memoized: every leg asks for its own amount.
func (s *Snapshot) Route(ctx context.Context, from, to models.Address, amountIn *uint256.Int) (*RouteQuote, error) {
	return s.inner.Route(ctx, from, to, amountIn)
}

// Calls returns how many distinct pairs were quoted.
func (s *Snapshot) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes)
}
