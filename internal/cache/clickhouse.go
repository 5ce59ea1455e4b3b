package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/basket-rebalancer/internal/constants"
	"github.com/aman-zulfiqar/basket-rebalancer/internal/models"
)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore is the rebalance audit trail.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, logger *logrus.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

// EnsureSchema creates the history tables when missing.
func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + constants.TableRebalanceLegs + ` (
			rebalance_id String,
			portfolio String,
			leg_index UInt32,
			token String,
			direction LowCardinality(String),
			venue LowCardinality(String),
			amount_in String,
			min_amount_out String,
			amount_out String,
			success Bool,
			error String,
			timestamp DateTime64(3)
		) ENGINE = MergeTree ORDER BY (portfolio, timestamp)`,
		`CREATE TABLE IF NOT EXISTS ` + constants.TableFeeWithdrawals + ` (
			portfolio String,
			asset String,
			amount String,
			recipient String,
			timestamp DateTime64(3)
		) ENGINE = MergeTree ORDER BY (portfolio, timestamp)`,
	}
	for _, q := range stmts {
		if err := c.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (c *ClickHouseStore) InsertLeg(ctx context.Context, ev *models.LegEvent) error {
	query := `
		INSERT INTO ` + constants.TableRebalanceLegs + ` (
			rebalance_id, portfolio, leg_index, token, direction, venue,
			amount_in, min_amount_out, amount_out, success, error, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		ev.RebalanceID,
		ev.Portfolio,
		uint32(ev.Index),
		ev.Token.Hex(),
		string(ev.Direction),
		ev.Venue.String(),
		decString(ev.AmountIn),
		decString(ev.MinAmountOut),
		decString(ev.AmountOut),
		ev.Success,
		ev.Error,
		ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert leg: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) InsertFeeWithdrawal(ctx context.Context, portfolio string, w *models.FeeWithdrawal) error {
	query := `
		INSERT INTO ` + constants.TableFeeWithdrawals + ` (
			portfolio, asset, amount, recipient, timestamp
		) VALUES (?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		portfolio,
		w.Asset.Hex(),
		decString(w.Amount),
		w.Recipient.Hex(),
		w.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fee withdrawal: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
