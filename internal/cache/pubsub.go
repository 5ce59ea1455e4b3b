package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

// PubSubManager publishes rebalance events to Redis channels.
type PubSubManager struct {
	client redis.UniversalClient
	logger *logrus.Logger
}

func NewPubSubManager(client redis.UniversalClient, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

func (p *PubSubManager) publish(ctx context.Context, v any, channels ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// PublishLeg publishes to the global legs channel and the portfolio channel
func (p *PubSubManager) PublishLeg(ctx context.Context, ev *models.LegEvent) error {
	return p.publish(ctx, ev,
		constants.PubSubChannelLegs,
		constants.PubSubPortfolioPrefix+ev.Portfolio,
	)
}

func (p *PubSubManager) PublishRebalance(ctx context.Context, ev *models.RebalanceEvent) error {
	return p.publish(ctx, ev,
		constants.PubSubChannelRebalances,
		constants.PubSubPortfolioPrefix+ev.Portfolio,
	)
}

func (p *PubSubManager) PublishFeeWithdrawal(ctx context.Context, portfolio string, w *models.FeeWithdrawal) error {
	return p.publish(ctx, map[string]any{"portfolio": portfolio, "withdrawal": w},
		constants.PubSubChannelFees,
	)
}

// Subscribe delivers raw payloads from channel until ctx is done
func (p *PubSubManager) Subscribe(ctx context.Context, channel string, handler func(channel string, payload []byte)) error {
	return p.consume(ctx, p.client.Subscribe(ctx, channel), handler)
}

// PSubscribe is Subscribe for a pattern (e.g. "rebalance:portfolio:*")
func (p *PubSubManager) PSubscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) error {
	return p.consume(ctx, p.client.PSubscribe(ctx, pattern), handler)
}

func (p *PubSubManager) consume(ctx context.Context, sub *redis.PubSub, handler func(string, []byte)) error {
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}
