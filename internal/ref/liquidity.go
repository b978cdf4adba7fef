package ref

import (
	"fmt"
	"math/big"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/amount"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// InitShareSupply is the share count minted by the first deposit into an
// empty simple pool.
var InitShareSupply = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// OptimalPairedAmount returns how much of the other pool token must accompany
// inputAmount of inputToken to deposit at the current ratio.
func OptimalPairedAmount(inputAmount *big.Int, inputToken string, pool *models.SimplePool) (*big.Int, error) {
	if pool == nil {
		return nil, ErrPoolUnavailable
	}
	if inputAmount == nil || inputAmount.Sign() <= 0 {
		return nil, amount.ErrInvalidAmount
	}
	if len(pool.Tokens) != 2 {
		return nil, fmt.Errorf("pool %d has %d tokens: %w", pool.ID, len(pool.Tokens), ErrUnsupportedPool)
	}

	reserveIn, idx, ok := pool.ReserveOf(inputToken)
	if !ok {
		return nil, fmt.Errorf("%s in pool %d: %w", inputToken, pool.ID, ErrTokenNotInPool)
	}
	if pool.TotalShares == nil || pool.TotalShares.Sign() <= 0 {
		return nil, ErrZeroShareSupply
	}
	reserveOther := pool.Reserves[1-idx]
	if reserveIn.Sign() <= 0 || reserveOther.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	out := new(big.Int).Mul(inputAmount, reserveOther)
	return out.Quo(out, reserveIn), nil
}

// WithdrawAmounts returns the two token amounts redeemed by burning lpShares
func WithdrawAmounts(lpShares *big.Int, pool *models.SimplePool) (*big.Int, *big.Int, error) {
	if pool == nil {
		return nil, nil, ErrPoolUnavailable
	}
	if len(pool.Reserves) != 2 {
		return nil, nil, fmt.Errorf("pool %d has %d tokens: %w", pool.ID, len(pool.Reserves), ErrUnsupportedPool)
	}
	if pool.TotalShares == nil || pool.TotalShares.Sign() <= 0 {
		return nil, nil, ErrZeroShareSupply
	}
	if lpShares == nil || lpShares.Sign() < 0 || lpShares.Cmp(pool.TotalShares) > 0 {
		return nil, nil, ErrInvalidShares
	}

	a := new(big.Int).Mul(lpShares, pool.Reserves[0])
	a.Quo(a, pool.TotalShares)
	b := new(big.Int).Mul(lpShares, pool.Reserves[1])
	b.Quo(b, pool.TotalShares)
	return a, b, nil
}

// SharesForDeposit returns the shares minted for depositing amounts (ordered
// like pool.Tokens). The scarcest side bounds the mint.
func SharesForDeposit(amounts []*big.Int, pool *models.SimplePool) (*big.Int, error) {
	if pool == nil {
		return nil, ErrPoolUnavailable
	}
	if len(amounts) != len(pool.Reserves) {
		return nil, fmt.Errorf("got %d amounts for %d tokens: %w", len(amounts), len(pool.Reserves), amount.ErrInvalidAmount)
	}
	for _, a := range amounts {
		if a == nil || a.Sign() <= 0 {
			return nil, amount.ErrInvalidAmount
		}
	}

	if pool.TotalShares == nil || pool.TotalShares.Sign() == 0 {
		return new(big.Int).Set(InitShareSupply), nil
	}

	var shares *big.Int
	for i, a := range amounts {
		if pool.Reserves[i].Sign() <= 0 {
			return nil, ErrInsufficientLiquidity
		}
		s := new(big.Int).Mul(a, pool.TotalShares)
		s.Quo(s, pool.Reserves[i])
		if shares == nil || s.Cmp(shares) < 0 {
			shares = s
		}
	}
	return shares, nil
}
