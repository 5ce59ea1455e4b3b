package models

import (
	"time"

	"github.com/holiman/uint256"
)

// Direction of a rebalance leg relative to the basket token.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// SettlementCall is the exact tuple a venue's swap entry point expects.
type SettlementCall struct {
	Venue        VenueKind    `json:"venue"`
	Path         []byte       `json:"path"`
	AmountIn     *uint256.Int `json:"amountIn"`
	MinAmountOut *uint256.Int `json:"minAmountOut"`
}

// FeeWithdrawal is recorded each time accrued fees leave the ledger.
type FeeWithdrawal struct {
	Asset     Address      `json:"asset"`
	Amount    *uint256.Int `json:"amount"`
	Recipient Address      `json:"recipient"`
	Timestamp time.Time    `json:"timestamp"`
}

// LegEvent describes one settled (or failed) rebalance leg.
type LegEvent struct {
	RebalanceID  string       `json:"rebalance_id"`
	Portfolio    string       `json:"portfolio"`
	Index        int          `json:"index"`
	Token        Address      `json:"token"`
	Direction    Direction    `json:"direction"`
	Venue        VenueKind    `json:"venue"`
	AmountIn     *uint256.Int `json:"amount_in"`
	MinAmountOut *uint256.Int `json:"min_amount_out"`
	AmountOut    *uint256.Int `json:"amount_out,omitempty"`
	Success      bool         `json:"success"`
	Error        string       `json:"error,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// RebalanceEvent summarizes one rebalance invocation.
type RebalanceEvent struct {
	RebalanceID string    `json:"rebalance_id"`
	Portfolio   string    `json:"portfolio"`
	Caller      Address   `json:"caller"`
	State       string    `json:"state"`
	Completed   int       `json:"completed"`
	NotExecuted int       `json:"not_executed"`
	Warnings    []string  `json:"warnings,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
