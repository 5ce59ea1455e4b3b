package server

import (
	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/basket"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
)

// HeaderCaller carries the address a request acts on behalf of.
const HeaderCaller = "X-Caller-Address"

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// CreatePortfolioRequest mirrors the factory call: identity, fees and the
// initial basket as parallel lists.
type CreatePortfolioRequest struct {
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	ReferenceAsset    string `json:"referenceAsset"`
	ReferenceDecimals uint8  `json:"referenceDecimals"`
	DepositFeeBps     uint16 `json:"depositFeeBps"`
	WithdrawalFeeBps  uint16 `json:"withdrawalFeeBps"`
	SlippageTolerance string `json:"slippageTolerance"` // readable percent
	MinDriftBps       uint16 `json:"minDriftBps"`

	basket.ListConfig
}

type HoldingView struct {
	Token  models.Address     `json:"token"`
	Amount amount.TradeAmount `json:"amount"`
}

type PortfolioResponse struct {
	Name     string             `json:"name"`
	Symbol   string             `json:"symbol"`
	Owner    models.Address     `json:"owner"`
	State    orchestrator.State `json:"state"`
	Paused   bool               `json:"paused"`
	Config   any                `json:"config"`
	Holdings []HoldingView      `json:"holdings"`
	Fees     map[string]string  `json:"fees"`
}

// AmountRequest takes a readable reference-asset amount, e.g. "1.5".
type AmountRequest struct {
	Amount string `json:"amount"`
}

type AmountResponse struct {
	Amount amount.TradeAmount `json:"amount"`
}

type FeeWithdrawRequest struct {
	Asset string `json:"asset"`
	To    string `json:"to"`
}

type SlippageRequest struct {
	Percent string `json:"percent"`
}

type AddressRequest struct {
	Address string `json:"address"`
}

type RebalanceResponse struct {
	Plan   *rebalance.Plan               `json:"plan"`
	Report *orchestrator.ExecutionReport `json:"report,omitempty"`
	Error  string                        `json:"error,omitempty"`
}

// PathRequest is the router's route shape: addresses, a "V2"/"V3" (or 0/1)
// version, and per-hop fees for V3.
type PathRequest struct {
	Addresses []string         `json:"addresses"`
	Version   models.VenueKind `json:"version"`
	Fees      []uint32         `json:"fees,omitempty"`
}

type PathResponse struct {
	Version models.VenueKind `json:"version"`
	Path    string           `json:"path"`
}

type DecodeRequest struct {
	Version models.VenueKind `json:"version"`
	Path    string           `json:"path"`
}

type QuoteResponse struct {
	Base  models.Address `json:"base"`
	Quote models.Address `json:"quote"`
	Price string         `json:"price"`
}
