// Command subscriber tails rebalance events published to Redis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/cache"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/config"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

func main() {
	loadEnv()

	name := flag.String("portfolio", "", "only show events of this portfolio")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}

	pubsub := cache.NewPubSubManager(client, logger)

	var wg sync.WaitGroup
	run := func(subscribe func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscribe(); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("subscription ended")
			}
		}()
	}

	if *name != "" {
		// Per-portfolio channel carries legs and run summaries
		channel := constants.PubSubPortfolioPrefix + *name
		run(func() error { return pubsub.Subscribe(ctx, channel, printEvent(logger)) })
	} else {
		run(func() error { return pubsub.Subscribe(ctx, constants.PubSubChannelLegs, printEvent(logger)) })
		run(func() error { return pubsub.Subscribe(ctx, constants.PubSubChannelRebalances, printEvent(logger)) })
		run(func() error { return pubsub.Subscribe(ctx, constants.PubSubChannelFees, printEvent(logger)) })
	}

	logger.Info("subscriber running, press Ctrl+C to stop")

	<-sigCh
	logger.Info("shutting down subscriber")
	cancel()
	wg.Wait()
}

// event is wide enough to tell leg, run and fee payloads apart.
type event struct {
	models.LegEvent
	State      string                `json:"state"`
	Completed  int                   `json:"completed"`
	Withdrawal *models.FeeWithdrawal `json:"withdrawal"`
}

func printEvent(logger *logrus.Logger) func(channel string, payload []byte) {
	return func(channel string, payload []byte) {
		var ev event
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.WithError(err).WithField("channel", channel).Warn("bad payload")
			return
		}

		entry := logger.WithFields(logrus.Fields{
			"channel":   channel,
			"portfolio": ev.Portfolio,
		})
		switch {
		case ev.Withdrawal != nil:
			entry.WithFields(logrus.Fields{
				"asset":     ev.Withdrawal.Asset.Hex(),
				"amount":    ev.Withdrawal.Amount,
				"recipient": ev.Withdrawal.Recipient.Hex(),
			}).Info("fees withdrawn")
		case ev.State != "":
			entry.WithFields(logrus.Fields{
				"rebalance": ev.RebalanceID,
				"state":     ev.State,
				"completed": ev.Completed,
			}).Info("rebalance finished")
		default:
			entry.WithFields(logrus.Fields{
				"rebalance": ev.RebalanceID,
				"leg":       ev.Index,
				"direction": ev.Direction,
				"token":     ev.Token.Hex(),
				"amount_in": ev.AmountIn,
				"success":   ev.Success,
				"error":     ev.Error,
			}).Info("leg")
		}
	}
}
