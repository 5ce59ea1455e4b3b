package rebalance

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

var (
	ErrEmptyBasket = errors.New("basket is empty")
	ErrNoValuation = errors.New("portfolio value cannot be priced")
	ErrConfig      = errors.New("invalid rebalance config")
)

// Config is the tunable part of a planning call. It is copied into every
// plan it produces.
type Config struct {
	// ReferenceAsset prices the portfolio and is the counter-asset of every leg.
	ReferenceAsset    models.Address `json:"referenceAsset"`
	ReferenceDecimals uint8          `json:"referenceDecimals"`
	// SlippageToleranceBps bounds each leg's minimum output.
	SlippageToleranceBps uint16 `json:"slippageToleranceBps"`
	// MinDriftBps is the minimum-trade threshold, relative to total
	// portfolio value. Smaller drifts are not worth a swap.
	MinDriftBps uint16 `json:"minDriftBps"`
}

func (c Config) Validate() error {
	if c.ReferenceAsset == (models.Address{}) {
		return fmt.Errorf("%w: reference asset is required", ErrConfig)
	}
	if c.ReferenceDecimals > amount.MaxDecimals {
		return fmt.Errorf("%w: reference decimals %d", ErrConfig, c.ReferenceDecimals)
	}
	if c.SlippageToleranceBps > amount.BpsDenominator {
		return fmt.Errorf("%w: slippage tolerance %d bps", ErrConfig, c.SlippageToleranceBps)
	}
	if c.MinDriftBps > amount.BpsDenominator {
		return fmt.Errorf("%w: min drift %d bps", ErrConfig, c.MinDriftBps)
	}
	return nil
}

// Holding is a live balance in base units.
type Holding struct {
	Token    models.Address `json:"token"`
	Balance  *uint256.Int   `json:"balance"`
	Decimals uint8          `json:"decimals"`
}

type WarningKind string

const (
	WarnUnpricedToken   WarningKind = "unpriced_token"
	WarnUnroutableToken WarningKind = "unroutable_token"
)

// Warning records a token the plan skipped without failing.
type Warning struct {
	Kind   WarningKind    `json:"kind"`
	Token  models.Address `json:"token"`
	Reason string         `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Kind, w.Token.Hex(), w.Reason)
}

// Leg is one single-route swap. AmountIn is denominated in From, QuotedOut
// and MinAmountOut in To.
type Leg struct {
	Index        int                `json:"index"`
	Token        models.Address     `json:"token"`
	Direction    models.Direction   `json:"direction"`
	From         models.Address     `json:"from"`
	To           models.Address     `json:"to"`
	AmountIn     amount.TradeAmount `json:"amountIn"`
	OutDecimals  uint8              `json:"outDecimals"`
	Route        models.Route       `json:"route"`
	QuotedOut    *uint256.Int       `json:"quotedOut"`
	MinAmountOut *uint256.Int       `json:"minAmountOut"`
	// Drift is the absolute imbalance in reference units this leg corrects.
	Drift decimal.Decimal `json:"drift"`
}

// Plan is a transient, ordered trade list: sells first, then buys.
type Plan struct {
	ID         string          `json:"id"`
	Legs       []Leg           `json:"legs"`
	Warnings   []Warning       `json:"warnings,omitempty"`
	TotalValue decimal.Decimal `json:"totalValue"`
	Config     Config          `json:"config"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Empty reports whether nothing needs trading.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Legs) == 0
}

func (p *Plan) WarningStrings() []string {
	if p == nil || len(p.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(p.Warnings))
	for i, w := range p.Warnings {
		out[i] = w.String()
	}
	return out
}
