// Package settlement provides the venue call layer the orchestrator issues
// legs to.
package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/orchestrator"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/resolver"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/swappath"
)

// Simulator settles legs off-chain at the oracle's current quote. It is
// used in dev mode and tests.
type Simulator struct {
	oracle resolver.RouteResolver

	mu    sync.Mutex
	calls []models.SettlementCall
	fail  map[int]error
}

func NewSimulator(oracle resolver.RouteResolver) *Simulator {
	return &Simulator{oracle: oracle, fail: make(map[int]error)}
}

// FailCall makes the n-th call (0-based, across the simulator's life)
// fail with err, or with orchestrator.ErrReverted when err is nil.
func (s *Simulator) FailCall(n int, err error) {
	if err == nil {
		err = orchestrator.ErrReverted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[n] = err
}

func (s *Simulator) Calls() []models.SettlementCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SettlementCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Simulator) Settle(ctx context.Context, call models.SettlementCall) (*uint256.Int, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, call)
	failErr, fail := s.fail[n]
	s.mu.Unlock()

	if fail {
		return nil, failErr
	}

	route, err := swappath.Decode(swappath.EncodedPath{Venue: call.Venue, Bytes: call.Path})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrReverted, err)
	}

	rq, err := s.oracle.Route(ctx, route.Source(), route.Destination(), call.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrReverted, err)
	}
	return rq.AmountOut, nil
}
