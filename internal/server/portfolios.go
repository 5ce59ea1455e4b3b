package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/amount"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/basket"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/portfolio"
)

func (h *Handlers) view(c echo.Context, p *portfolio.Portfolio) (PortfolioResponse, error) {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	paused, err := p.Paused(ctx)
	if err != nil {
		return PortfolioResponse{}, err
	}

	cfg := p.Config()
	holdings := p.Holdings()
	views := make([]HoldingView, 0, len(holdings))
	for _, hd := range holdings {
		views = append(views, HoldingView{
			Token:  hd.Token,
			Amount: amount.TradeAmount{Raw: hd.Balance, Decimals: hd.Decimals},
		})
	}

	return PortfolioResponse{
		Name:     cfg.Name,
		Symbol:   cfg.Symbol,
		Owner:    cfg.Owner,
		State:    p.State(),
		Paused:   paused,
		Config:   cfg,
		Holdings: views,
		Fees:     p.Snapshot().Fees,
	}, nil
}

// PortfoliosList lists portfolios, optionally filtered by ?owner=
func (h *Handlers) PortfoliosList(c echo.Context) error {
	var owner models.Address
	if v := strings.TrimSpace(c.QueryParam("owner")); v != "" {
		addr, ok := parseAddress(v)
		if !ok {
			return h.err(c, http.StatusBadRequest, "invalid owner", map[string]any{"owner": "must be a hex address"})
		}
		owner = addr
	}

	items := make([]PortfolioResponse, 0)
	for _, p := range h.Factory.List(owner) {
		v, err := h.view(c, p)
		if err != nil {
			return h.fail(c, err)
		}
		items = append(items, v)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// PortfoliosCreate creates a portfolio owned by the caller.
func (h *Handlers) PortfoliosCreate(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}

	var req CreatePortfolioRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	ref, ok := parseAddress(req.ReferenceAsset)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid referenceAsset", map[string]any{"referenceAsset": "must be a hex address"})
	}

	slippage := uint16(constants.DefaultSlippageToleranceBps)
	if req.SlippageTolerance != "" {
		bps, err := amount.ParsePercent(req.SlippageTolerance)
		if err != nil {
			return h.fail(c, err)
		}
		slippage = bps
	}

	var entries []models.BasketEntry
	if len(req.Tokens) > 0 {
		var err error
		entries, err = req.Entries()
		if err != nil {
			return h.fail(c, err)
		}
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Factory.Create(ctx, portfolio.Config{
		Name:                 strings.TrimSpace(req.Name),
		Symbol:               strings.TrimSpace(req.Symbol),
		Owner:                caller,
		ReferenceAsset:       ref,
		ReferenceDecimals:    req.ReferenceDecimals,
		DepositFeeBps:        req.DepositFeeBps,
		WithdrawalFeeBps:     req.WithdrawalFeeBps,
		SlippageToleranceBps: slippage,
		MinDriftBps:          req.MinDriftBps,
		Basket:               entries,
	})
	if err != nil {
		return h.fail(c, err)
	}

	v, err := h.view(c, p)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handlers) PortfoliosGet(c echo.Context) error {
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	v, err := h.view(c, p)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handlers) BasketGet(c echo.Context) error {
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": p.Basket()})
}

// BasketReplace (PUT) swaps the basket; BasketAppend (POST) extends it.
func (h *Handlers) BasketReplace(c echo.Context) error {
	return h.mutateBasket(c, (*portfolio.Portfolio).ReplaceBasket)
}

func (h *Handlers) BasketAppend(c echo.Context) error {
	return h.mutateBasket(c, (*portfolio.Portfolio).AppendBasket)
}

type basketMutation func(*portfolio.Portfolio, context.Context, models.Address, []models.BasketEntry) error

func (h *Handlers) mutateBasket(c echo.Context, apply basketMutation) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	var req basket.ListConfig
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	entries, err := req.Entries()
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := apply(p, ctx, caller, entries); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": p.Basket()})
}

func (h *Handlers) readAmount(c echo.Context, p *portfolio.Portfolio) (amount.TradeAmount, error) {
	var req AmountRequest
	if err := c.Bind(&req); err != nil {
		return amount.TradeAmount{}, err
	}
	d, err := amount.ParseDecimal(req.Amount)
	if err != nil {
		return amount.TradeAmount{}, err
	}
	return amount.NewTradeAmount(d, p.Config().ReferenceDecimals)
}

func (h *Handlers) Deposit(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	gross, err := h.readAmount(c, p)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"err": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	net, err := p.Deposit(ctx, caller, gross.Raw)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, AmountResponse{Amount: amount.TradeAmount{Raw: net, Decimals: gross.Decimals}})
}

func (h *Handlers) Withdraw(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	gross, err := h.readAmount(c, p)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"err": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	net, err := p.Withdraw(ctx, caller, gross.Raw)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, AmountResponse{Amount: amount.TradeAmount{Raw: net, Decimals: gross.Decimals}})
}

// PlanPreview computes a plan without starting a rebalance.
func (h *Handlers) PlanPreview(c echo.Context) error {
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	plan, err := p.PreviewPlan(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, plan)
}

// Rebalance runs one rebalance. A settlement failure still returns the
// plan and report so callers can see which legs settled.
func (h *Handlers) Rebalance(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 60*time.Second)
	defer cancel()

	res, err := p.Rebalance(ctx, caller)
	if err != nil && res == nil {
		return h.fail(c, err)
	}

	resp := RebalanceResponse{Plan: res.Plan, Report: res.Report}
	code := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		code = statusFor(err)
	}
	return c.JSON(code, resp)
}

func (h *Handlers) FeesGet(c echo.Context) error {
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"fees": p.Snapshot().Fees})
}

func (h *Handlers) FeesWithdraw(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	var req FeeWithdrawRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	asset, ok := parseAddress(req.Asset)
	if !ok {
		asset = p.Config().ReferenceAsset
		if strings.TrimSpace(req.Asset) != "" {
			return h.err(c, http.StatusBadRequest, "invalid asset", map[string]any{"asset": "must be a hex address"})
		}
	}
	to, ok := parseAddress(req.To)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid to", map[string]any{"to": "must be a hex address"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	w, err := p.WithdrawFees(ctx, caller, asset, to)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handlers) SlippageSet(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	var req SlippageRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	bps, err := amount.ParsePercent(req.Percent)
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := p.SetSlippageTolerance(ctx, caller, bps); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"slippageToleranceBps": bps})
}

func (h *Handlers) Pause(c echo.Context) error {
	return h.setPaused(c, true)
}

func (h *Handlers) Unpause(c echo.Context) error {
	return h.setPaused(c, false)
}

func (h *Handlers) setPaused(c echo.Context, paused bool) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if paused {
		err = p.Pause(ctx, caller)
	} else {
		err = p.Unpause(ctx, caller)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"paused": paused})
}

func (h *Handlers) WhitelistAdd(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	var req AddressRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid address", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := p.Whitelist(ctx, caller, addr); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) WhitelistRemove(c echo.Context) error {
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}
	addr, ok := parseAddress(c.Param("address"))
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid address", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := p.Unwhitelist(ctx, caller, addr); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SyncBalances refreshes holdings from chain. Owner or whitelisted only.
func (h *Handlers) SyncBalances(c echo.Context) error {
	if h.Balances == nil {
		return h.err(c, http.StatusBadRequest, "rpc is not configured", nil)
	}
	caller, ok := h.caller(c)
	if !ok {
		return h.badCaller(c)
	}
	p, err := h.Factory.Get(c.Param("name"))
	if err != nil {
		return h.fail(c, err)
	}

	var req AddressRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	account, ok := parseAddress(req.Address)
	if !ok {
		return h.err(c, http.StatusBadRequest, "invalid address", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	if err := p.SyncBalances(ctx, caller, h.Balances, account); err != nil {
		return h.fail(c, err)
	}
	v, err := h.view(c, p)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}
