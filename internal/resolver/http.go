package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/metrics"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

// HTTPClient talks to a router sidecar that wraps the route-finding
// service.
//
//	GET {base}/quote?base=0x..&quote=0x..          -> {"price": "1834.12"}
//	GET {base}/route?from=0x..&to=0x..&amount=123  -> [{"addresses": [...], "version": "V3", "fees": [500], "amountOut": "456"}]
//
// The first route returned is used. A 404 or an empty list means no route.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Logger  *logrus.Logger
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("router http %d", e.StatusCode)
	}
	return fmt.Sprintf("router http %d: %s", e.StatusCode, b)
}

type quoteResponse struct {
	Price string `json:"price"`
}

type routeResponse struct {
	Addresses []string         `json:"addresses"`
	Version   models.VenueKind `json:"version"`
	Fees      []uint32         `json:"fees"`
	AmountOut string           `json:"amountOut"`
}

func (c *HTTPClient) Quote(ctx context.Context, base, quote models.Address) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("base", base.Hex())
	q.Set("quote", quote.Hex())

	var out quoteResponse
	if err := c.get(ctx, "/quote", q, &out); err != nil {
		c.Logger.WithError(err).WithFields(logrus.Fields{
			"base":  base.Hex(),
			"quote": quote.Hex(),
		}).Warn("router quote failed")
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	price, err := decimal.NewFromString(out.Price)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bad price %q", ErrUnavailable, out.Price)
	}
	return price, nil
}

func (c *HTTPClient) Route(ctx context.Context, from, to models.Address, amountIn *uint256.Int) (*RouteQuote, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, fmt.Errorf("amountIn is required")
	}

	q := url.Values{}
	q.Set("from", from.Hex())
	q.Set("to", to.Hex())
	q.Set("amount", amountIn.Dec())

	var routes []routeResponse
	if err := c.get(ctx, "/route", q, &routes); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, from.Hex(), to.Hex())
		}
		c.Logger.WithError(err).WithFields(logrus.Fields{
			"from": from.Hex(),
			"to":   to.Hex(),
		}).Warn("router route failed")
		return nil, fmt.Errorf("%w: %v", ErrNoRoute, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, from.Hex(), to.Hex())
	}

	return routes[0].toQuote()
}

func (r routeResponse) toQuote() (*RouteQuote, error) {
	hops := make([]models.Address, len(r.Addresses))
	for i, a := range r.Addresses {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("%w: bad hop address %q", ErrNoRoute, a)
		}
		hops[i] = common.HexToAddress(a)
	}

	route := models.Route{Hops: hops, Venue: r.Version}
	if r.Version == models.VenueV3 {
		route.PerHopFee = r.Fees
	}

	out, err := uint256.FromDecimal(r.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("%w: bad amountOut %q", ErrNoRoute, r.AmountOut)
	}
	return &RouteQuote{Route: route, AmountOut: out}, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.BaseURL == "" {
		return fmt.Errorf("router url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	kind := strings.TrimPrefix(path, "/")
	res, err := c.HTTP.Do(req)
	if err != nil {
		metrics.OracleRequests.WithLabelValues(kind, "error").Inc()
		return err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	metrics.OracleRequests.WithLabelValues(kind, strconv.Itoa(res.StatusCode)).Inc()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &HTTPError{StatusCode: res.StatusCode, Body: body}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode router response: %w", err)
	}
	return nil
}
