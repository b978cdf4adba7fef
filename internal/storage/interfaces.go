package storage

import (
	"context"
	"io"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// SwapCache defines the interface for caching swap outcomes
type SwapCache interface {
	// AddRecentSwap adds a swap to the recent swaps list
	AddRecentSwap(ctx context.Context, swap *models.SwapRecord) error

	// GetRecentSwaps retrieves the most recent swaps
	GetRecentSwaps(ctx context.Context, limit int64) ([]*models.SwapRecord, error)

	// Ping checks if the cache is reachable
	Ping(ctx context.Context) error

	// Close closes the cache connection
	io.Closer
}

// SwapStore defines the interface for persistent swap storage
type SwapStore interface {
	// InsertSwap inserts a swap outcome into the store
	InsertSwap(ctx context.Context, swap *models.SwapRecord) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// SwapRecorder persists settled swaps wherever they are configured to go
type SwapRecorder interface {
	RecordSwap(ctx context.Context, swap *models.SwapRecord) error
}

// EventBridge shares bus events with other processes
type EventBridge interface {
	// Forward publishes local events to the shared channel until ctx ends
	Forward(ctx context.Context) error

	// Listen republishes remote events on the local bus until ctx ends
	Listen(ctx context.Context, bus events.Publisher) error
}
