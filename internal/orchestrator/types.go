package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/swappath"
)

var (
	ErrUnauthorized = errors.New("caller is not authorized")
	ErrPaused       = errors.New("rebalancing is paused")
	ErrBusy         = errors.New("a rebalance is already in flight")
	ErrNotPlanning  = errors.New("no rebalance is being planned")

	// ErrReverted is returned by settlers when the venue call reverts.
	ErrReverted = errors.New("settlement reverted")
	// ErrSlippage means a leg returned less than its minimum output.
	ErrSlippage = errors.New("slippage bound violated")
)

type State int

const (
	StateIdle State = iota
	StatePlanning
	StateExecuting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateExecuting:
		return "executing"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settler issues one venue swap and returns the amount received.
// Implementations must not retry.
type Settler interface {
	Settle(ctx context.Context, call models.SettlementCall) (*uint256.Int, error)
}

// Controls holds the pause flag and the whitelist.
type Controls interface {
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
	IsWhitelisted(ctx context.Context, addr models.Address) (bool, error)
	Whitelist(ctx context.Context, addr models.Address) error
	Unwhitelist(ctx context.Context, addr models.Address) error
}

// SettlementError is fatal to the invocation that raised it.
type SettlementError struct {
	Leg   int
	Token models.Address
	Err   error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("leg %d (%s) failed: %v", e.Leg, e.Token.Hex(), e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// LegResult is a settled leg.
type LegResult struct {
	Leg       rebalance.Leg        `json:"leg"`
	Path      swappath.EncodedPath `json:"-"`
	PathHex   string               `json:"path"`
	AmountOut *uint256.Int         `json:"amountOut"`
}

// ExecutionReport lists which legs of a plan settled and which were never
// issued.
type ExecutionReport struct {
	PlanID      string           `json:"planId"`
	State       State            `json:"state"`
	Completed   []LegResult      `json:"completed"`
	NotExecuted []rebalance.Leg  `json:"notExecuted"`
	Failure     *SettlementError `json:"-"`
	Error       string           `json:"error,omitempty"`
}
