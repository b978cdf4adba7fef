package ref

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// AccessorConfig holds the knobs of the pool accessor
type AccessorConfig struct {
	IndexerTimeout time.Duration
	IndexerMaxAge  time.Duration // 0 accepts any indexer snapshot
	Logger         *logrus.Logger
}

// Accessor fetches pool snapshots, preferring the indexer and falling back
// to the chain. Each call returns a new immutable snapshot.
type Accessor struct {
	indexer *IndexerClient
	chain   *ChainClient
	cfg     AccessorConfig
	logger  *logrus.Logger
	now     func() time.Time
}

// NewAccessor creates a pool accessor. indexer may be nil.
func NewAccessor(indexer *IndexerClient, chain *ChainClient, cfg AccessorConfig) *Accessor {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.IndexerTimeout <= 0 {
		cfg.IndexerTimeout = 3 * time.Second
	}
	return &Accessor{
		indexer: indexer,
		chain:   chain,
		cfg:     cfg,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// IsConcentratedID reports whether poolID has the "token_x|token_y|fee" shape
func IsConcentratedID(poolID string) bool {
	return strings.Count(poolID, "|") == 2
}

// GetPool returns a fresh snapshot of poolID. The indexer answer is used when
// it arrives in time and is recent enough; otherwise the chain is read.
func (a *Accessor) GetPool(ctx context.Context, poolID string) (models.Pool, error) {
	poolID = strings.TrimSpace(poolID)
	if poolID == "" {
		return nil, fmt.Errorf("empty pool id: %w", ErrPoolUnavailable)
	}

	if IsConcentratedID(poolID) {
		raw, err := a.chain.GetDCLPool(ctx, poolID)
		if err != nil {
			return nil, a.unavailable(poolID, err)
		}
		return decodePool(raw, models.PoolSourceRPC, a.now())
	}

	if a.indexer != nil {
		pool, err := a.fromIndexer(ctx, poolID)
		if err == nil {
			return pool, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.WithFields(logrus.Fields{
			"pool_id": poolID,
		}).WithError(err).Warn("indexer pool read failed, falling back to rpc")
	}

	raw, err := a.chain.GetPool(ctx, poolID)
	if err != nil {
		return nil, a.unavailable(poolID, err)
	}
	return decodePool(raw, models.PoolSourceRPC, a.now())
}

// GetSimplePool returns poolID only when it is a constant-product pool
func (a *Accessor) GetSimplePool(ctx context.Context, poolID string) (*models.SimplePool, error) {
	pool, err := a.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	simple, ok := pool.(*models.SimplePool)
	if !ok {
		return nil, fmt.Errorf("pool %s is %s: %w", poolID, pool.Kind(), ErrUnsupportedPool)
	}
	return simple, nil
}

func (a *Accessor) fromIndexer(ctx context.Context, poolID string) (models.Pool, error) {
	ictx, cancel := context.WithTimeout(ctx, a.cfg.IndexerTimeout)
	defer cancel()

	raw, err := a.indexer.GetPool(ictx, poolID)
	if err != nil {
		return nil, err
	}

	now := a.now()
	if a.cfg.IndexerMaxAge > 0 && raw.UpdateTime > 0 {
		age := now.Sub(time.Unix(raw.UpdateTime, 0))
		if age > a.cfg.IndexerMaxAge {
			return nil, fmt.Errorf("indexer snapshot is %s old", age.Round(time.Second))
		}
	}
	return decodePool(raw, models.PoolSourceIndexer, now)
}

func (a *Accessor) unavailable(poolID string, err error) error {
	a.logger.WithFields(logrus.Fields{
		"pool_id": poolID,
	}).WithError(err).Error("pool read failed")
	return fmt.Errorf("pool %s: %w: %v", poolID, ErrPoolUnavailable, err)
}

// decodePool is the single place where the raw pool shape is inspected.
func decodePool(raw *RawPool, source models.PoolSource, fetchedAt time.Time) (models.Pool, error) {
	meta := models.SnapshotMeta{
		ID:        uuid.NewString(),
		Source:    source,
		FetchedAt: fetchedAt,
	}

	switch raw.PoolKind {
	case constants.PoolKindSimple:
		return decodeSimple(raw, meta)
	case constants.PoolKindConcentrated:
		return decodeConcentrated(raw, meta)
	default:
		return nil, fmt.Errorf("pool %s kind %q: %w", raw.ID, raw.PoolKind, ErrUnsupportedPool)
	}
}

func decodeSimple(raw *RawPool, meta models.SnapshotMeta) (*models.SimplePool, error) {
	id, err := strconv.ParseUint(string(raw.ID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("pool id %q: %w", raw.ID, ErrPoolUnavailable)
	}
	if len(raw.TokenAccountIDs) < 2 || len(raw.TokenAccountIDs) != len(raw.Amounts) {
		return nil, fmt.Errorf("pool %d: malformed token/amount lists: %w", id, ErrPoolUnavailable)
	}

	reserves := make([]*big.Int, len(raw.Amounts))
	for i, s := range raw.Amounts {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok || v.Sign() <= 0 {
			return nil, fmt.Errorf("pool %d reserve %d %q: %w", id, i, s, ErrPoolUnavailable)
		}
		reserves[i] = v
	}

	shares := new(big.Int)
	if raw.SharesTotalSupply != "" {
		if _, ok := shares.SetString(raw.SharesTotalSupply, 10); !ok {
			return nil, fmt.Errorf("pool %d share supply %q: %w", id, raw.SharesTotalSupply, ErrPoolUnavailable)
		}
	}

	meta.ID = fmt.Sprintf("%d-%s", id, meta.ID)
	return &models.SimplePool{
		ID:          id,
		Tokens:      append([]string(nil), raw.TokenAccountIDs...),
		Reserves:    reserves,
		TotalShares: shares,
		FeeBps:      raw.TotalFee,
		Meta:        meta,
	}, nil
}

func decodeConcentrated(raw *RawPool, meta models.SnapshotMeta) (*models.ConcentratedPool, error) {
	id := raw.PoolID
	if id == "" {
		id = string(raw.ID)
	}
	if raw.TokenX == "" || raw.TokenY == "" {
		return nil, fmt.Errorf("dcl pool %s: missing tokens: %w", id, ErrPoolUnavailable)
	}

	meta.ID = fmt.Sprintf("%s-%s", id, meta.ID)
	return &models.ConcentratedPool{
		ID:           id,
		TokenX:       raw.TokenX,
		TokenY:       raw.TokenY,
		FeeBps:       raw.Fee / 100,
		CurrentPoint: raw.CurrentPoint,
		Liquidity:    parseOrZero(raw.Liquidity),
		TotalX:       parseOrZero(raw.TotalX),
		TotalY:       parseOrZero(raw.TotalY),
		Meta:         meta,
	}, nil
}

func parseOrZero(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
