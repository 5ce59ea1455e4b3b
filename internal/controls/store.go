package controls

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store keeps a portfolio's pause flag and whitelist in Redis so every API
// replica sees the same controls. Keys:
//
//	controls:<portfolio>:flag:<key>   JSON Flag
//	controls:<portfolio>:flags        set of flag keys
//	controls:<portfolio>:whitelist    set of lowercase hex addresses
type Store struct {
	client    redis.Cmdable
	portfolio string
}

func NewStore(client redis.Cmdable, portfolio string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if err := ValidateKey(portfolio); err != nil {
		return nil, fmt.Errorf("portfolio name: %w", err)
	}
	return &Store{client: client, portfolio: portfolio}, nil
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid flag key")
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, key string, value bool) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	flag := &Flag{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(flag)
	if err != nil {
		return nil, fmt.Errorf("marshal flag: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.flagKey(key), b, 0)
	pipe.SAdd(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("upsert flag: %w", err)
	}

	return flag, nil
}

func (s *Store) Get(ctx context.Context, key string) (*Flag, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, s.flagKey(key)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag: %w", err)
	}

	var f Flag
	if err := json.Unmarshal([]byte(val), &f); err != nil {
		return nil, fmt.Errorf("unmarshal flag: %w", err)
	}
	return &f, nil
}

func (s *Store) List(ctx context.Context) ([]*Flag, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags index: %w", err)
	}
	if len(keys) == 0 {
		return []*Flag{}, nil
	}

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			continue
		}
		redisKeys = append(redisKeys, s.flagKey(k))
	}
	if len(redisKeys) == 0 {
		return []*Flag{}, nil
	}

	vals, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget flags: %w", err)
	}

	out := make([]*Flag, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var f Flag
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			continue
		}
		out = append(out, &f)
	}

	return out, nil
}

// Paused treats a missing flag as not paused.
func (s *Store) Paused(ctx context.Context) (bool, error) {
	f, err := s.Get(ctx, FlagPaused)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.Value, nil
}

func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	_, err := s.Upsert(ctx, FlagPaused, paused)
	return err
}

func (s *Store) IsWhitelisted(ctx context.Context, addr models.Address) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.whitelistKey(), member(addr)).Result()
	if err != nil {
		return false, fmt.Errorf("check whitelist: %w", err)
	}
	return ok, nil
}

func (s *Store) Whitelist(ctx context.Context, addr models.Address) error {
	if err := s.client.SAdd(ctx, s.whitelistKey(), member(addr)).Err(); err != nil {
		return fmt.Errorf("whitelist: %w", err)
	}
	return nil
}

func (s *Store) Unwhitelist(ctx context.Context, addr models.Address) error {
	if err := s.client.SRem(ctx, s.whitelistKey(), member(addr)).Err(); err != nil {
		return fmt.Errorf("unwhitelist: %w", err)
	}
	return nil
}

// Whitelisted lists every whitelisted address.
func (s *Store) Whitelisted(ctx context.Context) ([]models.Address, error) {
	members, err := s.client.SMembers(ctx, s.whitelistKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	out := make([]models.Address, 0, len(members))
	for _, m := range members {
		if common.IsHexAddress(m) {
			out = append(out, common.HexToAddress(m))
		}
	}
	return out, nil
}

func (s *Store) prefix() string {
	return constants.RedisKeyControlsPrefix + s.portfolio + ":"
}

func (s *Store) flagKey(key string) string { return s.prefix() + "flag:" + key }
func (s *Store) indexKey() string          { return s.prefix() + "flags" }
func (s *Store) whitelistKey() string      { return s.prefix() + "whitelist" }

func member(addr models.Address) string {
	return strings.ToLower(addr.Hex())
}
