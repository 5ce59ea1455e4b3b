package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
)

// ErrUnavailable means the execution service could not be reached.
var ErrUnavailable = errors.New("settlement unavailable")

// HTTPExecutor posts each leg to an execution service, which submits the
// venue swap and answers once it is mined:
//
//	POST {base}/settle {"venue":"V3","path":"0x..","amountIn":"..","minAmountOut":".."}
//	-> {"amountOut":"..","reverted":false,"reason":""}
//
// Calls are never retried. Resource limits such as gas are the service's
// concern.
type HTTPExecutor struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

func NewHTTPExecutor(baseURL string, timeout time.Duration, logger *logrus.Logger) *HTTPExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPExecutor{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type settleRequest struct {
	Venue        models.VenueKind `json:"venue"`
	Path         string           `json:"path"`
	AmountIn     string           `json:"amountIn"`
	MinAmountOut string           `json:"minAmountOut"`
}

type settleResponse struct {
	AmountOut string `json:"amountOut"`
	Reverted  bool   `json:"reverted"`
	Reason    string `json:"reason"`
}

func (e *HTTPExecutor) Settle(ctx context.Context, call models.SettlementCall) (*uint256.Int, error) {
	if call.AmountIn == nil || call.MinAmountOut == nil {
		return nil, fmt.Errorf("amountIn and minAmountOut are required")
	}

	body, err := json.Marshal(settleRequest{
		Venue:        call.Venue,
		Path:         hexutil.Encode(call.Path),
		AmountIn:     call.AmountIn.Dec(),
		MinAmountOut: call.MinAmountOut.Dec(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		e.logger.WithFields(logrus.Fields{
			"status": res.StatusCode,
			"venue":  call.Venue.String(),
		}).Warn("execution service rejected leg")
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out settleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode settle response: %w", err)
	}
	if out.Reverted {
		return nil, fmt.Errorf("%w: %s", orchestrator.ErrReverted, out.Reason)
	}

	amountOut, err := uint256.FromDecimal(out.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("bad amountOut %q: %w", out.AmountOut, err)
	}
	return amountOut, nil
}
