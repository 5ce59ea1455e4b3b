// Package resolver is the boundary to the external route-finding oracle.
// The oracle is a black box: it prices token pairs and proposes a route
// with a quoted output for a given input amount.
package resolver

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

var (
	// ErrUnavailable means the oracle could not price the pair.
	ErrUnavailable = errors.New("quote unavailable")
	// ErrNoRoute means the oracle found no route between the tokens.
	ErrNoRoute = errors.New("no route")
)

// RouteQuote is a candidate route with the oracle's quoted output, in base
// units of the destination token.
type RouteQuote struct {
	Route     models.Route `json:"route"`
	AmountOut *uint256.Int `json:"amountOut"`
}

// RouteResolver is implemented by oracle clients.
//
// Quote returns the price of one whole base token expressed in whole quote
// tokens. Route proposes a path that sells amountIn base units of from.
type RouteResolver interface {
	Quote(ctx context.Context, base, quote models.Address) (decimal.Decimal, error)
	Route(ctx context.Context, from, to models.Address, amountIn *uint256.Int) (*RouteQuote, error)
}

type pair struct {
	a, b models.Address
}
