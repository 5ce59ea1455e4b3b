package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/swappath"
)

// Quote returns the oracle price of base in units of quote.
func (h *Handlers) Quote(c echo.Context) error {
	base, ok := parseAddress(c.QueryParam("base"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid base", map[string]any{"base": "must be a hex address"})
	}
	quote, ok := parseAddress(c.QueryParam("quote"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid quote", map[string]any{"quote": "must be a hex address"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	price, err := h.Resolver.Quote(ctx, base, quote)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, QuoteResponse{Base: base, Quote: quote, Price: price.String()})
}

// Route asks the oracle for the best single-venue route for a raw amount.
func (h *Handlers) Route(c echo.Context) error {
	from, ok := parseAddress(c.QueryParam("from"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid from", map[string]any{"from": "must be a hex address"})
	}
	to, ok := parseAddress(c.QueryParam("to"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid to", map[string]any{"to": "must be a hex address"})
	}
	amountIn, err := uint256.FromDecimal(strings.TrimSpace(c.QueryParam("amount")))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "must be a base-10 integer"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	rq, err := h.Resolver.Route(ctx, from, to, amountIn)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, rq)
}

// PathEncode packs a route into the venue's path bytes.
func (h *Handlers) PathEncode(c echo.Context) error {
	var req PathRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	hops := make([]models.Address, 0, len(req.Addresses))
	for i, a := range req.Addresses {
		addr, ok := parseAddress(a)
		if !ok {
			return h.err(c, http.StatusBadRequest, "invalid address", map[string]any{"index": i})
		}
		hops = append(hops, addr)
	}

	p, err := swappath.Encode(models.Route{Hops: hops, Venue: req.Version, PerHopFee: req.Fees})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, PathResponse{Version: p.Venue, Path: p.Hex()})
}

func (h *Handlers) PathDecode(c echo.Context) error {
	var req DecodeRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	route, err := swappath.DecodeHex(req.Version, req.Path)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, route)
}

// Convert turns a readable amount into base units: ?amount=1.5&decimals=6
func (h *Handlers) Convert(c echo.Context) error {
	decimals, err := strconv.ParseUint(strings.TrimSpace(c.QueryParam("decimals")), 10, 8)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid decimals", map[string]any{"decimals": "must be uint8"})
	}
	d, err := amount.ParseDecimal(c.QueryParam("amount"))
	if err != nil {
		return h.fail(c, err)
	}
	ta, err := amount.NewTradeAmount(d, uint8(decimals))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, AmountResponse{Amount: ta})
}
