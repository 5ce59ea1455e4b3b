package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

// Static is an in-memory oracle backed by fixed price and route tables. It
// serves development mode and tests.
type Static struct {
	mu       sync.RWMutex
	prices   map[pair]decimal.Decimal
	routes   map[pair]models.Route
	decimals map[models.Address]uint8
}

func NewStatic() *Static {
	return &Static{
		prices:   make(map[pair]decimal.Decimal),
		routes:   make(map[pair]models.Route),
		decimals: make(map[models.Address]uint8),
	}
}

// SetPrice records the price of one base token in quote tokens. The
// inverse direction is derived when it has not been set explicitly.
func (s *Static) SetPrice(base, quote models.Address, price decimal.Decimal) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[pair{base, quote}] = price
	return s
}

// SetDecimals records a token's decimal count (18 when unset).
func (s *Static) SetDecimals(token models.Address, decimals uint8) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decimals[token] = decimals
	return s
}

// SetRoute registers a route from its first to its last hop.
func (s *Static) SetRoute(route models.Route) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[pair{route.Source(), route.Destination()}] = route
	return s
}

func (s *Static) Quote(_ context.Context, base, quote models.Address) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price(base, quote)
}

func (s *Static) price(base, quote models.Address) (decimal.Decimal, error) {
	if base == quote {
		return decimal.NewFromInt(1), nil
	}
	if p, ok := s.prices[pair{base, quote}]; ok {
		return p, nil
	}
	if p, ok := s.prices[pair{quote, base}]; ok && !p.IsZero() {
		return decimal.NewFromInt(1).DivRound(p, 36), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrUnavailable, base.Hex(), quote.Hex())
}

func (s *Static) decimalsOf(token models.Address) uint8 {
	if d, ok := s.decimals[token]; ok {
		return d
	}
	return 18
}

// Route returns the registered route with an output quoted at the table
// price, truncated to the destination token's decimals.
func (s *Static) Route(_ context.Context, from, to models.Address, amountIn *uint256.Int) (*RouteQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	route, ok := s.routes[pair{from, to}]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, from.Hex(), to.Hex())
	}
	p, err := s.price(from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}

	outDec := s.decimalsOf(to)
	out := amount.FromBaseUnits(amountIn, s.decimalsOf(from)).Mul(p).Truncate(int32(outDec))
	raw, err := amount.ToBaseUnits(out, outDec)
	if err != nil {
		return nil, err
	}
	return &RouteQuote{Route: route, AmountOut: raw}, nil
}
