package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/price"
)

// PoolReader is satisfied by *ref.Accessor
type PoolReader interface {
	GetPool(ctx context.Context, poolID string) (models.Pool, error)
}

// PriceReader is satisfied by *price.Service
type PriceReader interface {
	Prices(ctx context.Context, pool *models.SimplePool, tokens map[string]models.Token) *price.Snapshot
}

// TokenLookup is satisfied by *ref.TokenRegistry
type TokenLookup interface {
	Lookup(tokenID string) (models.Token, bool)
}

// RefresherConfig holds configuration for the refresher
type RefresherConfig struct {
	Pools     PoolReader
	Prices    PriceReader
	Tokens    TokenLookup
	Store     *SnapshotStore
	Publisher events.Publisher
	Logger    *logrus.Logger

	PoolIDs      []string
	Interval     time.Duration
	MaxParallel  int
	FetchTimeout time.Duration
}

// Refresher re-reads the watched pools and token prices on a fixed interval
// and publishes each new snapshot.
type Refresher struct {
	cfg    RefresherConfig
	logger *logrus.Logger

	mu      sync.Mutex
	running bool
}

// NewRefresher creates a new refresher
func NewRefresher(cfg RefresherConfig) (*Refresher, error) {
	if cfg.Pools == nil {
		return nil, fmt.Errorf("pool reader is nil")
	}
	if len(cfg.PoolIDs) == 0 {
		return nil, fmt.Errorf("no pools to refresh")
	}
	if cfg.Store == nil {
		cfg.Store = NewSnapshotStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Refresher{cfg: cfg, logger: cfg.Logger}, nil
}

// Store returns the snapshot store the refresher writes to
func (r *Refresher) Store() *SnapshotStore { return r.cfg.Store }

// Start refreshes once immediately and then on every tick until ctx ends
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.logger.WithFields(logrus.Fields{
		"interval": r.cfg.Interval,
		"pools":    r.cfg.PoolIDs,
	}).Info("starting pool refresher")

	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.WithError(err).Warn("refresh incomplete")
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				r.logger.WithError(err).Warn("refresh incomplete")
			}
		}
	}
}

// RefreshOnce reads every watched pool concurrently, then prices. A pool that
// fails keeps its previous snapshot.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxParallel)
	for _, id := range r.cfg.PoolIDs {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
			defer cancel()

			pool, err := r.cfg.Pools.GetPool(fctx, id)
			if err != nil {
				r.cfg.Store.SetPoolError(id, err)
				r.logger.WithError(err).WithField("pool", id).Warn("pool refresh failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
				mu.Unlock()
				return nil
			}
			r.cfg.Store.SetPool(pool)
			r.publish(events.New(events.PoolRefreshed, id, pool))
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.refreshPrices(ctx)
	return errors.Join(errs...)
}

func (r *Refresher) refreshPrices(ctx context.Context) {
	if r.cfg.Prices == nil {
		return
	}
	var anchor *models.SimplePool
	for _, id := range r.cfg.PoolIDs {
		if p, ok := r.cfg.Store.Pool(id); ok {
			if sp, ok := p.(*models.SimplePool); ok {
				anchor = sp
				break
			}
		}
	}

	tokens := make(map[string]models.Token)
	if anchor != nil && r.cfg.Tokens != nil {
		for _, id := range anchor.Tokens {
			if t, ok := r.cfg.Tokens.Lookup(id); ok {
				tokens[id] = t
			}
		}
	}

	snap := r.cfg.Prices.Prices(ctx, anchor, tokens)
	r.cfg.Store.SetPrices(snap)

	payload := make(map[string]string, len(snap.Prices))
	for id, p := range snap.Prices {
		payload[id] = p.String()
	}
	poolID := ""
	if anchor != nil {
		poolID = anchor.PoolID()
	}
	r.publish(events.New(events.PricesRefreshed, poolID, payload))
	r.logger.WithFields(logrus.Fields{
		"source": snap.Source,
		"tokens": len(snap.Prices),
	}).Debug("prices refreshed")
}

func (r *Refresher) publish(e events.Event) {
	if r.cfg.Publisher == nil {
		return
	}
	if err := r.cfg.Publisher.Publish(e); err != nil {
		r.logger.WithError(err).WithField("type", e.Type).Debug("event not published")
	}
}
