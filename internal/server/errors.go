package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/basket"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/fees"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/portfolio"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/rebalance"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/swappath"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		// Don't send response if already committed
		if c.Response().Committed {
			return
		}

		// Handle Echo HTTP errors (like 404, 400, etc.)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		// Handle all other errors as internal server error
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var serr *orchestrator.SettlementError
	switch {
	case errors.As(err, &serr):
		return http.StatusBadGateway
	case errors.Is(err, basket.ErrValidation),
		errors.Is(err, swappath.ErrPathLength),
		errors.Is(err, swappath.ErrFeeTier),
		errors.Is(err, swappath.ErrMalformedPath),
		errors.Is(err, swappath.ErrUnknownVenue),
		errors.Is(err, amount.ErrPrecision),
		errors.Is(err, rebalance.ErrConfig),
		errors.Is(err, portfolio.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrUnauthorized),
		errors.Is(err, fees.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, portfolio.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrExists),
		errors.Is(err, orchestrator.ErrPaused),
		errors.Is(err, orchestrator.ErrBusy),
		errors.Is(err, orchestrator.ErrNotPlanning):
		return http.StatusConflict
	case errors.Is(err, rebalance.ErrNoValuation),
		errors.Is(err, rebalance.ErrEmptyBasket),
		errors.Is(err, portfolio.ErrInsufficientBalance),
		errors.Is(err, fees.ErrNothingToWithdraw):
		return http.StatusUnprocessableEntity
	case errors.Is(err, resolver.ErrUnavailable),
		errors.Is(err, resolver.ErrNoRoute):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
