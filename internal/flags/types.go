package flags

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("flag not found")

// Operator switches consulted by the swap engine. A missing flag means the
// default: swaps and liquidity enabled, no pool disabled.
const (
	KeySwapsEnabled     = "swaps.enabled"
	KeyLiquidityEnabled = "liquidity.enabled"
)

// PoolDisabledKey is the switch that takes one pool out of service
func PoolDisabledKey(poolID string) string {
	return "pool." + poolID + ".disabled"
}

type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reader answers whether a switch is on, falling back to def when the flag is
// unset or the backing store cannot be read.
type Reader interface {
	IsEnabled(ctx context.Context, key string, def bool) bool
}

// Manager is the full CRUD surface exposed to operators
type Manager interface {
	Reader
	Upsert(ctx context.Context, key string, value bool) (*Flag, error)
	Get(ctx context.Context, key string) (*Flag, error)
	List(ctx context.Context) ([]*Flag, error)
	Delete(ctx context.Context, key string) error
}
