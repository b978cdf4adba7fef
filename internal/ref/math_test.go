package ref

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

// nearTokenPool holds 1,000,000 NEAR against 500,000 TOKEN (18 decimals) at 30 bps.
func nearTokenPool() *models.SimplePool {
	return &models.SimplePool{
		ID:          79,
		Tokens:      []string{"wrap.near", "token.near"},
		Reserves:    []*big.Int{bi("1000000000000000000000000000000"), bi("500000000000000000000000")},
		TotalShares: bi("1000000000000000000000000"),
		FeeBps:      30,
		Meta:        models.SnapshotMeta{ID: "79-snap", Source: models.PoolSourceRPC},
	}
}

func TestEstimate_ConstantProductWithFee(t *testing.T) {
	est, err := Estimate(EstimateRequest{
		TokenIn:         "wrap.near",
		TokenOut:        "token.near",
		AmountIn:        bi("10000000000000000000000000"), // 10 NEAR
		SlippagePercent: decimal.RequireFromString("0.5"),
	}, nearTokenPool())
	require.NoError(t, err)
	require.NotNil(t, est)

	assert.Equal(t, "4984950150498495015", est.AmountOut.String())
	assert.Equal(t, "4960025399746002539", est.MinReceived.String())
	assert.Equal(t, "0.0009999900001", est.PriceImpact.String())
	assert.False(t, est.HighImpact)
	assert.Equal(t, uint32(30), est.FeeBps)
	assert.Equal(t, "79-snap", est.PoolSnapshotID)
	require.Len(t, est.Route, 1)
	assert.Equal(t, "79", est.Route[0].PoolID)
}

func TestEstimate_RawOutBeforeFee(t *testing.T) {
	p := nearTokenPool()
	raw := ConstantProductOut(bi("10000000000000000000000000"), p.Reserves[0], p.Reserves[1])
	assert.Equal(t, "4999950000499995000", raw.String())
	assert.Equal(t, "4984950150498495015", ApplyFee(raw, 30).String())
}

func TestEstimate_TokenOrderIndependent(t *testing.T) {
	p := nearTokenPool()
	q := nearTokenPool()
	q.Tokens = []string{"token.near", "wrap.near"}
	q.Reserves = []*big.Int{p.Reserves[1], p.Reserves[0]}

	req := EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: bi("10000000000000000000000000")}
	a, err := Estimate(req, p)
	require.NoError(t, err)
	b, err := Estimate(req, q)
	require.NoError(t, err)
	assert.Equal(t, a.AmountOut.String(), b.AmountOut.String())
}

func TestEstimate_ZeroSlippageKeepsOutput(t *testing.T) {
	est, err := Estimate(EstimateRequest{
		TokenIn:  "wrap.near",
		TokenOut: "token.near",
		AmountIn: bi("10000000000000000000000000"),
	}, nearTokenPool())
	require.NoError(t, err)
	assert.Equal(t, est.AmountOut.String(), est.MinReceived.String())
}

func TestEstimate_NoEstimateForNonPositiveInput(t *testing.T) {
	for _, in := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		est, err := Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: in}, nearTokenPool())
		assert.NoError(t, err)
		assert.Nil(t, est)
	}
}

func TestEstimate_Errors(t *testing.T) {
	amt := bi("1000000000000000000000000")

	_, err := Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "usdc.near", AmountIn: amt}, nearTokenPool())
	assert.ErrorIs(t, err, ErrTokenNotInPool)

	_, err = Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: amt,
		SlippagePercent: decimal.NewFromInt(51)}, nearTokenPool())
	assert.ErrorIs(t, err, ErrInvalidSlippage)

	_, err = Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: amt,
		SlippagePercent: decimal.NewFromInt(-1)}, nearTokenPool())
	assert.ErrorIs(t, err, ErrInvalidSlippage)

	empty := nearTokenPool()
	empty.Reserves = []*big.Int{big.NewInt(0), big.NewInt(0)}
	est, err := Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: amt}, empty)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Nil(t, est)

	_, err = Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: amt}, nil)
	assert.ErrorIs(t, err, ErrPoolUnavailable)
}

func TestEstimate_OutputRoundsToZero(t *testing.T) {
	_, err := Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: big.NewInt(1)}, nearTokenPool())
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestEstimate_HighImpactFlag(t *testing.T) {
	// 100,000 NEAR into a 1,000,000 NEAR pool moves the price by ~9%
	est, err := Estimate(EstimateRequest{
		TokenIn:  "wrap.near",
		TokenOut: "token.near",
		AmountIn: bi("100000000000000000000000000000"),
	}, nearTokenPool())
	require.NoError(t, err)
	assert.True(t, est.HighImpact)
	assert.True(t, est.PriceImpact.GreaterThan(decimal.NewFromInt(9)))
}

func TestEstimate_MonotonicInAmount(t *testing.T) {
	pool := nearTokenPool()
	var prevOut *big.Int
	prevImpact := decimal.NewFromInt(-1)

	for _, s := range []string{
		"1000000000000000000000000",
		"10000000000000000000000000",
		"100000000000000000000000000",
		"1000000000000000000000000000",
		"10000000000000000000000000000",
	} {
		est, err := Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: bi(s)}, pool)
		require.NoError(t, err)
		if prevOut != nil {
			assert.Equal(t, 1, est.AmountOut.Cmp(prevOut), "output must grow with input %s", s)
		}
		assert.True(t, est.PriceImpact.GreaterThan(prevImpact), "impact must grow with input %s", s)
		assert.Equal(t, -1, est.AmountOut.Cmp(pool.Reserves[1]))
		prevOut = est.AmountOut
		prevImpact = est.PriceImpact
	}
}

func TestEstimate_MonotonicInReserves(t *testing.T) {
	amountIn := bi("10000000000000000000000000") // 10 NEAR
	scales := []string{
		"100000000000000000000000000000",
		"1000000000000000000000000000000",
		"10000000000000000000000000000000",
		"100000000000000000000000000000000",
	}

	tests := []struct {
		name string
		side int // reserve index varied, 0 is the input side
		cmp  int // required sign of out(next) - out(prev)
	}{
		{"more output reserve never lowers output", 1, 1},
		{"more input reserve never raises output", 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prev *big.Int
			for _, reserve := range scales {
				pool := nearTokenPool()
				pool.Reserves[tt.side] = bi(reserve)

				est, err := Estimate(EstimateRequest{TokenIn: "wrap.near", TokenOut: "token.near", AmountIn: amountIn}, pool)
				require.NoError(t, err)
				if prev != nil {
					got := est.AmountOut.Cmp(prev)
					assert.True(t, got == 0 || got == tt.cmp, "reserve %s: %s after %s", reserve, est.AmountOut, prev)
				}
				prev = est.AmountOut
			}
		})
	}
}

func TestApplySlippage(t *testing.T) {
	got, err := ApplySlippage(big.NewInt(1000), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "995", got.String())

	got, err = ApplySlippage(big.NewInt(999), decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, "499", got.String())

	_, err = ApplySlippage(big.NewInt(1000), decimal.RequireFromString("50.01"))
	assert.ErrorIs(t, err, ErrInvalidSlippage)
}

func TestApplyFee_FullFeeLeavesNothing(t *testing.T) {
	assert.Equal(t, "0", ApplyFee(big.NewInt(1000000), 10000).String())
	assert.Equal(t, "1000000", ApplyFee(big.NewInt(1000000), 0).String())
}
