package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/portfolio"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/storage"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Factory  *portfolio.Factory      // Portfolio registry
	Resolver resolver.RouteResolver  // Price and route oracle
	Balances portfolio.BalanceReader // On-chain balance reader (optional)
	Store    storage.StateStore      // Checked by /health (optional)
	History  storage.HistoryStore    // Checked by /health (optional)
	DevMode  bool                    // Enable detailed error responses in development
	Logger   *logrus.Logger          // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail maps a domain error to its status. Internal errors are logged and
// not echoed to the client.
func (h *Handlers) fail(c echo.Context, err error) error {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		return h.err(c, code, "internal server error", map[string]any{"err": err.Error()})
	}
	return h.err(c, code, err.Error(), nil)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports the state of the optional backing stores.
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{OK: true, Checks: map[string]string{}}
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			resp.OK = false
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	if h.Store != nil {
		check("redis", h.Store.Ping)
	}
	if h.History != nil {
		check("clickhouse", h.History.Ping)
	}

	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func parseAddress(s string) (models.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return models.Address{}, false
	}
	return common.HexToAddress(s), true
}

// caller reads the acting address from HeaderCaller.
func (h *Handlers) caller(c echo.Context) (models.Address, bool) {
	return parseAddress(c.Request().Header.Get(HeaderCaller))
}

func (h *Handlers) badCaller(c echo.Context) error {
	return h.err(c, http.StatusBadRequest, "invalid caller", map[string]any{HeaderCaller: "must be a hex address"})
}
