package ref

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

var (
	hundred       = decimal.NewFromInt(100)
	feeDivisor    = big.NewInt(constants.FeeDivisor)
	highImpactPct = decimal.NewFromInt(constants.HighImpactThreshold)
	maxSlippage   = decimal.NewFromInt(constants.MaxSlippagePercent)
)

// impactPrecision is the number of fractional digits kept on price impact.
const impactPrecision = 18

// Estimate quotes an exact-input trade against a constant-product pool.
// A nil or non-positive AmountIn yields no estimate and no error.
func Estimate(req EstimateRequest, pool *models.SimplePool) (*models.SwapEstimate, error) {
	if pool == nil {
		return nil, ErrPoolUnavailable
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, nil
	}
	if err := ValidateSlippage(req.SlippagePercent); err != nil {
		return nil, err
	}

	reserveIn, _, ok := pool.ReserveOf(req.TokenIn)
	if !ok {
		return nil, fmt.Errorf("%s in pool %d: %w", req.TokenIn, pool.ID, ErrTokenNotInPool)
	}
	reserveOut, _, ok := pool.ReserveOf(req.TokenOut)
	if !ok {
		return nil, fmt.Errorf("%s in pool %d: %w", req.TokenOut, pool.ID, ErrTokenNotInPool)
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	rawOut := ConstantProductOut(req.AmountIn, reserveIn, reserveOut)
	finalOut := ApplyFee(rawOut, pool.FeeBps)
	if finalOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	impact := PriceImpact(req.AmountIn, rawOut, reserveIn, reserveOut)
	minReceived, err := ApplySlippage(finalOut, req.SlippagePercent)
	if err != nil {
		return nil, err
	}

	snap := pool.Snapshot()
	return &models.SwapEstimate{
		TokenIn:         req.TokenIn,
		TokenOut:        req.TokenOut,
		AmountIn:        new(big.Int).Set(req.AmountIn),
		AmountOut:       finalOut,
		MinReceived:     minReceived,
		PriceImpact:     impact,
		HighImpact:      impact.Abs().GreaterThanOrEqual(highImpactPct),
		FeeBps:          pool.FeeBps,
		SlippagePercent: req.SlippagePercent,
		ReserveIn:       new(big.Int).Set(reserveIn),
		ReserveOut:      new(big.Int).Set(reserveOut),
		Route: []models.RouteHop{{
			PoolID:   pool.PoolID(),
			TokenIn:  req.TokenIn,
			TokenOut: req.TokenOut,
		}},
		PoolSnapshotID: snap.ID,
		PoolFetchedAt:  snap.FetchedAt,
		QuotedAt:       time.Now(),
	}, nil
}

// ConstantProductOut is reserveOut*amountIn/(reserveIn+amountIn), floored
func ConstantProductOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	num := new(big.Int).Mul(reserveOut, amountIn)
	den := new(big.Int).Add(reserveIn, amountIn)
	if den.Sign() <= 0 {
		return new(big.Int)
	}
	return num.Quo(num, den)
}

// ApplyFee takes feeBps off the output amount. Fees at or above 100% leave nothing.
func ApplyFee(amountOut *big.Int, feeBps uint32) *big.Int {
	if int64(feeBps) >= constants.FeeDivisor {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amountOut, big.NewInt(constants.FeeDivisor-int64(feeBps)))
	return out.Quo(out, feeDivisor)
}

// PriceImpact returns (spot - effective) / spot * 100 where spot is
// reserveOut/reserveIn and effective is rawOut/amountIn. The ratio is
// evaluated on integers so tiny spot prices keep their precision.
func PriceImpact(amountIn, rawOut, reserveIn, reserveOut *big.Int) decimal.Decimal {
	// effective/spot = rawOut*reserveIn / (amountIn*reserveOut)
	den := new(big.Int).Mul(amountIn, reserveOut)
	if den.Sign() == 0 {
		return decimal.Zero
	}
	num := new(big.Int).Mul(rawOut, reserveIn)
	diff := new(big.Int).Sub(den, num)

	return decimal.NewFromBigInt(diff, 0).
		Mul(hundred).
		DivRound(decimal.NewFromBigInt(den, 0), impactPrecision)
}

// ValidateSlippage checks that a slippage percent lies within [0, 50]
func ValidateSlippage(slippagePercent decimal.Decimal) error {
	if slippagePercent.IsNegative() || slippagePercent.GreaterThan(maxSlippage) {
		return fmt.Errorf("%s: %w", slippagePercent, ErrInvalidSlippage)
	}
	return nil
}

// ApplySlippage returns amount*(100-slippagePercent)/100, floored
func ApplySlippage(amount *big.Int, slippagePercent decimal.Decimal) (*big.Int, error) {
	if err := ValidateSlippage(slippagePercent); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int), nil
	}
	return decimal.NewFromBigInt(amount, 0).
		Mul(hundred.Sub(slippagePercent)).
		Div(hundred).
		Truncate(0).
		BigInt(), nil
}
