package amount

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToContractUnits(t *testing.T) {
	tests := []struct {
		name     string
		display  string
		decimals int
		want     string
	}{
		{"whole near", "10", 24, "10000000000000000000000000"},
		{"fractional near", "1.5", 24, "1500000000000000000000000"},
		{"truncates excess precision", "1.23456789", 6, "1234567"},
		{"below one unit truncates to zero", "0.0000009", 6, "0"},
		{"thousands separators and padding", " 1,000.5 ", 2, "100050"},
		{"zero decimals", "42.99", 0, "42"},
		{"zero", "0", 18, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToContractUnits(tt.display, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToContractUnits_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "-1", "1.2.3", "NaN"} {
		got, err := ToContractUnits(in, 18)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", in)
		assert.Equal(t, "0", got, "input %q", in)
	}
}

func TestToContractUnits_RejectsOversized(t *testing.T) {
	for _, in := range []string{
		"1e10000000",
		"1E2147483640",
		"1e3",
		"340282366920938463463.374607431768211456", // 2^128 at 18 decimals
		"1000000000000000000000000000000000000000",
	} {
		start := time.Now()
		got, err := ToContractUnits(in, 18)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", in)
		assert.Equal(t, "0", got, "input %q", in)
		assert.Less(t, time.Since(start), time.Second, "input %q", in)
	}

	_, err := ToContractUnits("1", 40)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestToContractUnits_U128Boundary(t *testing.T) {
	got, err := ToContractUnits("340282366920938463463.374607431768211455", 18)
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", got)
}

func TestToDisplayUnits(t *testing.T) {
	assert.Equal(t, "1.5", ToDisplayUnits("1500000000000000000000000", 24, 4))
	assert.Equal(t, "1.23", ToDisplayUnits("1234567", 6, 2))
	assert.Equal(t, "0", ToDisplayUnits("1", 24, 4))
	assert.Equal(t, "1000000", ToDisplayUnits("1000000", 0, 4))
	assert.Equal(t, "0", ToDisplayUnits("junk", 6, 2))
	assert.Equal(t, "0", ToDisplayUnits("-5", 6, 2))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1,234,567.89", Format("1234567890000", 6, 2))
	assert.Equal(t, "1,000", Format("1000", 0, 0))
	assert.Equal(t, "999", Format("999", 0, 2))
	assert.Equal(t, "<0.0001", Format("1", 24, 4))
	assert.Equal(t, "<1", Format("5", 1, 0))
	assert.Equal(t, "0", Format("0", 24, 4))
	assert.Equal(t, "0", Format("not-a-number", 24, 4))
}

func TestRoundTrip(t *testing.T) {
	values := []string{
		"0",
		"1",
		"7",
		"1000",
		"123456789",
		"1000000000000000000000000",
		"999999999999999999999999999999",
		"340282366920938463463374607431768211455",
	}

	for d := 0; d <= 24; d++ {
		for _, x := range values {
			display := ToDisplayUnits(x, d, d)
			back, err := ToContractUnits(display, d)
			require.NoError(t, err)

			want, _ := new(big.Int).SetString(x, 10)
			got, _ := new(big.Int).SetString(back, 10)
			diff := new(big.Int).Sub(want, got)
			assert.True(t, diff.CmpAbs(big.NewInt(1)) <= 0, "x=%s d=%d display=%s back=%s", x, d, display, back)
		}
	}
}

func TestParse(t *testing.T) {
	n, err := Parse(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n.Int64())

	_, err = Parse("1.5")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Parse("-3")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
