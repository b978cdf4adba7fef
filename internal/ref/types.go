package ref

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrPoolUnavailable       = errors.New("pool unavailable")
	ErrUnsupportedPool       = errors.New("unsupported pool kind")
	ErrTokenNotInPool        = errors.New("token not in pool")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidSlippage       = errors.New("slippage must be within [0, 50] percent")
	ErrZeroShareSupply       = errors.New("pool has zero share supply")
	ErrInvalidShares         = errors.New("invalid share amount")
	ErrTokenUnknown          = errors.New("token metadata unavailable")
)

// EstimateRequest describes one exact-input trade to quote.
type EstimateRequest struct {
	TokenIn         string
	TokenOut        string
	AmountIn        *big.Int // contract units
	SlippagePercent decimal.Decimal
}

// RawPool is the superset of pool fields returned by the exchange contract,
// the DCL contract and the indexer. It only lives at the boundary; decodePool
// turns it into a models.Pool variant.
type RawPool struct {
	ID                PoolIDString `json:"id,omitempty"`
	PoolKind          string       `json:"pool_kind"`
	TokenAccountIDs   []string     `json:"token_account_ids"`
	Amounts           []string     `json:"amounts"`
	TotalFee          uint32       `json:"total_fee"`
	SharesTotalSupply string       `json:"shares_total_supply"`
	UpdateTime        int64        `json:"update_time,omitempty"`

	// Concentrated-liquidity fields
	PoolID       string `json:"pool_id,omitempty"`
	TokenX       string `json:"token_x,omitempty"`
	TokenY       string `json:"token_y,omitempty"`
	Fee          uint32 `json:"fee,omitempty"` // hundredths of a basis point
	CurrentPoint int32  `json:"current_point,omitempty"`
	Liquidity    string `json:"liquidity,omitempty"`
	TotalX       string `json:"total_x,omitempty"`
	TotalY       string `json:"total_y,omitempty"`
}

// PoolIDString accepts a pool id encoded either as a JSON string or a number.
type PoolIDString string

func (p *PoolIDString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PoolIDString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("pool id: %w", err)
	}
	*p = PoolIDString(n.String())
	return nil
}

// StorageBalance is the NEP-145 storage_balance_of return value.
type StorageBalance struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

// FtMetadata is the NEP-148 ft_metadata return value.
type FtMetadata struct {
	Spec     string `json:"spec"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Icon     string `json:"icon"`
	Decimals int    `json:"decimals"`
}
