package storage

import (
	"context"
	"errors"
	"io"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

// ErrNotFound is returned by a StateStore for an unknown portfolio.
var ErrNotFound = errors.New("portfolio state not found")

// StateStore persists portfolio state between restarts
type StateStore interface {
	// SaveState overwrites the stored state of a portfolio
	SaveState(ctx context.Context, state *models.PortfolioState) error

	// LoadState returns the stored state or ErrNotFound
	LoadState(ctx context.Context, name string) (*models.PortfolioState, error)

	// ListPortfolios returns the names of all stored portfolios
	ListPortfolios(ctx context.Context) ([]string, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	io.Closer
}

// EventPublisher fans rebalance events out to subscribers
type EventPublisher interface {
	PublishLeg(ctx context.Context, ev *models.LegEvent) error
	PublishRebalance(ctx context.Context, ev *models.RebalanceEvent) error
	PublishFeeWithdrawal(ctx context.Context, portfolio string, w *models.FeeWithdrawal) error
}

// HistoryStore is the append-only audit trail of settled legs and fee
// withdrawals
type HistoryStore interface {
	InsertLeg(ctx context.Context, ev *models.LegEvent) error
	InsertFeeWithdrawal(ctx context.Context, portfolio string, w *models.FeeWithdrawal) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	io.Closer
}
