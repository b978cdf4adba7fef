package cache

import (
	"context"
	"errors"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/storage"
)

// Recorder writes each settled swap to the recent-swaps cache and the
// history store. Either side may be nil.
type Recorder struct {
	cache storage.SwapCache
	store storage.SwapStore
}

func NewRecorder(cache storage.SwapCache, store storage.SwapStore) *Recorder {
	return &Recorder{cache: cache, store: store}
}

func (r *Recorder) RecordSwap(ctx context.Context, swap *models.SwapRecord) error {
	var errs []error
	if r.cache != nil {
		if err := r.cache.AddRecentSwap(ctx, swap); err != nil {
			errs = append(errs, err)
		}
	}
	if r.store != nil {
		if err := r.store.InsertSwap(ctx, swap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes both sides
func (r *Recorder) Close() error {
	var errs []error
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	return errors.Join(errs...)
}

var (
	_ storage.SwapCache    = (*RedisCache)(nil)
	_ storage.SwapStore    = (*ClickHouseStore)(nil)
	_ storage.SwapRecorder = (*Recorder)(nil)
	_ storage.EventBridge  = (*PubSubBridge)(nil)
)
