package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

type ClickHouseConfig struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// ClickHouseStore is the append-only history of settled swap plans
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

const createSwapsTable = `
	CREATE TABLE IF NOT EXISTS swaps (
		plan_id      String,
		account_id   String,
		timestamp    DateTime64(3, 'UTC'),
		pair         String,
		token_in     String,
		token_out    String,
		amount_in    String,
		amount_out   String,
		min_received String,
		price_impact String,
		pool_id      String,
		status       LowCardinality(String),
		tx_hashes    Array(String),
		error        String
	) ENGINE = MergeTree
	ORDER BY (account_id, timestamp, plan_id)
`

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, logger *logrus.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	store := &ClickHouseStore{conn: conn, logger: logger}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.WithField("addr", cfg.Addr).Info("connected to ClickHouse")
	return store, nil
}

func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, createSwapsTable); err != nil {
		return fmt.Errorf("failed to create swaps table: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) InsertSwap(ctx context.Context, swap *models.SwapRecord) error {
	query := `
		INSERT INTO swaps (
			plan_id, account_id, timestamp, pair, token_in, token_out,
			amount_in, amount_out, min_received, price_impact, pool_id,
			status, tx_hashes, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	hashes := swap.TxHashes
	if hashes == nil {
		hashes = []string{}
	}
	err := c.conn.Exec(ctx, query,
		swap.PlanID,
		swap.AccountID,
		swap.Timestamp,
		swap.Pair,
		swap.TokenIn,
		swap.TokenOut,
		swap.AmountIn,
		swap.AmountOut,
		swap.MinReceived,
		swap.PriceImpact,
		swap.PoolID,
		swap.Status,
		hashes,
		swap.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	return nil
}

// SwapsByAccount returns an account's most recent swaps, newest first
func (c *ClickHouseStore) SwapsByAccount(ctx context.Context, accountID string, limit int) ([]*models.SwapRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := c.conn.Query(ctx, `
		SELECT plan_id, account_id, timestamp, pair, token_in, token_out,
			amount_in, amount_out, min_received, price_impact, pool_id,
			status, tx_hashes, error
		FROM swaps
		WHERE account_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query swaps: %w", err)
	}
	defer rows.Close()

	var out []*models.SwapRecord
	for rows.Next() {
		var s models.SwapRecord
		if err := rows.Scan(
			&s.PlanID, &s.AccountID, &s.Timestamp, &s.Pair, &s.TokenIn, &s.TokenOut,
			&s.AmountIn, &s.AmountOut, &s.MinReceived, &s.PriceImpact, &s.PoolID,
			&s.Status, &s.TxHashes, &s.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan swap: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
