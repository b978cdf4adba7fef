package ref

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/rpc"
)

// ViewCaller runs read-only contract methods. *rpc.Client satisfies it.
type ViewCaller interface {
	ViewFunction(ctx context.Context, contractID, method string, args interface{}, out interface{}) error
}

// ChainClient reads pool, storage and token state straight from the contracts
type ChainClient struct {
	view     ViewCaller
	exchange string
	dcl      string
}

// NewChainClient creates a chain reader over the given view caller
func NewChainClient(view ViewCaller, exchangeContract, dclContract string) *ChainClient {
	if exchangeContract == "" {
		exchangeContract = constants.DefaultExchangeContract
	}
	if dclContract == "" {
		dclContract = constants.DefaultDCLContract
	}
	return &ChainClient{
		view:     view,
		exchange: exchangeContract,
		dcl:      dclContract,
	}
}

// Exchange returns the exchange contract account id
func (c *ChainClient) Exchange() string { return c.exchange }

// GetPool fetches a constant-product (or other exchange-hosted) pool by numeric id
func (c *ChainClient) GetPool(ctx context.Context, poolID string) (*RawPool, error) {
	id, err := strconv.ParseUint(poolID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("pool id %q: %w", poolID, ErrPoolUnavailable)
	}

	var raw RawPool
	if err := c.view.ViewFunction(ctx, c.exchange, constants.MethodGetPool, map[string]uint64{"pool_id": id}, &raw); err != nil {
		return nil, fmt.Errorf("get_pool %d: %w", id, err)
	}
	raw.ID = PoolIDString(poolID)
	return &raw, nil
}

// GetDCLPool fetches a concentrated-liquidity pool by its "x|y|fee" id
func (c *ChainClient) GetDCLPool(ctx context.Context, poolID string) (*RawPool, error) {
	var raw RawPool
	if err := c.view.ViewFunction(ctx, c.dcl, constants.MethodGetPool, map[string]string{"pool_id": poolID}, &raw); err != nil {
		return nil, fmt.Errorf("dcl get_pool %s: %w", poolID, err)
	}
	if raw.TokenX == "" {
		return nil, fmt.Errorf("dcl pool %s: %w", poolID, ErrPoolUnavailable)
	}
	raw.PoolKind = constants.PoolKindConcentrated
	raw.ID = PoolIDString(poolID)
	return &raw, nil
}

// StorageBalanceOf reports whether accountID holds a storage registration on
// contractID. A nil balance with a nil error means not registered.
func (c *ChainClient) StorageBalanceOf(ctx context.Context, contractID, accountID string) (*StorageBalance, error) {
	var bal *StorageBalance
	err := c.view.ViewFunction(ctx, contractID, constants.MethodStorageBalanceOf,
		map[string]string{"account_id": accountID}, &bal)
	if err != nil {
		return nil, fmt.Errorf("storage_balance_of %s on %s: %w", accountID, contractID, err)
	}
	return bal, nil
}

// FtMetadata fetches the NEP-148 metadata of a fungible token contract
func (c *ChainClient) FtMetadata(ctx context.Context, tokenID string) (*FtMetadata, error) {
	var meta FtMetadata
	if err := c.view.ViewFunction(ctx, tokenID, constants.MethodFtMetadata, nil, &meta); err != nil {
		var viewErr *rpc.ViewError
		if errors.As(err, &viewErr) {
			return nil, fmt.Errorf("%s: %w", tokenID, ErrTokenUnknown)
		}
		return nil, fmt.Errorf("ft_metadata %s: %w", tokenID, err)
	}
	return &meta, nil
}
