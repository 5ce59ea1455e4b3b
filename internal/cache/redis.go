package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/storage"
)

// RedisStore keeps one JSON document per portfolio plus a set index of
// portfolio names.
type RedisStore struct {
	client redis.Cmdable
	closer func() error
	logger *logrus.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and pings.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	s := NewRedisStoreFromClient(client, logger)
	s.closer = client.Close
	return s, nil
}

// NewRedisStoreFromClient wraps a client owned by the caller; Close is a
// no-op.
func NewRedisStoreFromClient(client redis.Cmdable, logger *logrus.Logger) *RedisStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) SaveState(ctx context.Context, state *models.PortfolioState) error {
	if state == nil || state.Name == "" {
		return fmt.Errorf("portfolio state needs a name")
	}
	state.UpdatedAt = time.Now().UTC()

	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal portfolio state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, portfolioKey(state.Name), b, 0)
	pipe.SAdd(ctx, constants.RedisKeyPortfolioIndex, state.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save portfolio state: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadState(ctx context.Context, name string) (*models.PortfolioState, error) {
	val, err := s.client.Get(ctx, portfolioKey(name)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio state: %w", err)
	}

	var st models.PortfolioState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("unmarshal portfolio state: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) ListPortfolios(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, constants.RedisKeyPortfolioIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list portfolios index: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func portfolioKey(name string) string {
	return constants.RedisKeyPortfolioPrefix + name
}
