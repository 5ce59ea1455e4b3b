package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func TestStaticQuote(t *testing.T) {
	s := NewStatic().SetPrice(weth, usdc, decimal.NewFromInt(2000))
	ctx := context.Background()

	p, err := s.Quote(ctx, weth, usdc)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(2000)))

	inv, err := s.Quote(ctx, usdc, weth)
	require.NoError(t, err)
	assert.True(t, inv.Equal(decimal.RequireFromString("0.0005")))

	one, err := s.Quote(ctx, dai, dai)
	require.NoError(t, err)
	assert.True(t, one.Equal(decimal.NewFromInt(1)))

	_, err = s.Quote(ctx, dai, usdc)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStaticRoute(t *testing.T) {
	route := models.Route{Hops: []models.Address{weth, usdc}, Venue: models.VenueV3, PerHopFee: []uint32{500}}
	s := NewStatic().
		SetPrice(weth, usdc, decimal.NewFromInt(2000)).
		SetDecimals(usdc, 6).
		SetRoute(route)
	ctx := context.Background()

	// 1.5 WETH -> 3000 USDC
	in, _ := uint256.FromDecimal("1500000000000000000")
	rq, err := s.Route(ctx, weth, usdc, in)
	require.NoError(t, err)
	assert.True(t, route.Equal(rq.Route))
	assert.Equal(t, "3000000000", rq.AmountOut.Dec())

	_, err = s.Route(ctx, usdc, weth, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrNoRoute)
}

type countingResolver struct {
	RouteResolver
	quotes atomic.Int32
}

func (c *countingResolver) Quote(ctx context.Context, a, b models.Address) (decimal.Decimal, error) {
	c.quotes.Add(1)
	return c.RouteResolver.Quote(ctx, a, b)
}

func TestSnapshotMemoizesQuotes(t *testing.T) {
	inner := &countingResolver{RouteResolver: NewStatic().SetPrice(weth, usdc, decimal.NewFromInt(2000))}
	snap := NewSnapshot(inner)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := snap.Quote(ctx, weth, usdc)
		require.NoError(t, err)
		_, err = snap.Quote(ctx, dai, usdc)
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	assert.Equal(t, int32(2), inner.quotes.Load())
	assert.Equal(t, 2, snap.Calls())
}

func newRouterServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		if common.HexToAddress(r.URL.Query().Get("base")) != weth {
			http.Error(w, "unknown pair", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"price": "1834.5"})
	})
	mux.HandleFunc("/route", func(w http.ResponseWriter, r *http.Request) {
		switch common.HexToAddress(r.URL.Query().Get("to")) {
		case usdc:
			assert.Equal(t, "1000", r.URL.Query().Get("amount"))
			_, _ = w.Write([]byte(`[{
				"addresses": ["` + weth.Hex() + `", "` + dai.Hex() + `", "` + usdc.Hex() + `"],
				"version": "V3",
				"fees": [500, 100],
				"amountOut": "1834"
			}]`))
		case dai:
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient(t *testing.T) {
	srv := newRouterServer(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := NewHTTPClient(srv.URL+"/", "secret", time.Second, logger)
	ctx := context.Background()

	p, err := c.Quote(ctx, weth, usdc)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("1834.5")))

	_, err = c.Quote(ctx, dai, usdc)
	assert.ErrorIs(t, err, ErrUnavailable)

	rq, err := c.Route(ctx, weth, usdc, uint256.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, models.VenueV3, rq.Route.Venue)
	assert.Equal(t, []models.Address{weth, dai, usdc}, rq.Route.Hops)
	assert.Equal(t, []uint32{500, 100}, rq.Route.PerHopFee)
	assert.Equal(t, uint64(1834), rq.AmountOut.Uint64())

	_, err = c.Route(ctx, weth, dai, uint256.NewInt(1000))
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = c.Route(ctx, weth, weth, uint256.NewInt(1000))
	assert.ErrorIs(t, err, ErrNoRoute)
}
