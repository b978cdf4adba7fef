// Package amount converts token amounts between display strings and integer
// contract units. All arithmetic is decimal; floats are never involved.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// MaxDigits is the length of the largest u128, the widest NEP-141 balance.
const MaxDigits = 39

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ToContractUnits converts a human display amount into an integer string
// scaled by 10^decimals. Excess precision is truncated, never rounded up, so a
// user can never spend more than they typed. On invalid input it returns "0"
// alongside ErrInvalidAmount.
func ToContractUnits(display string, decimals int) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(display), ",", "")
	if s == "" {
		return "0", fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if decimals < 0 || decimals > MaxDigits {
		return "0", fmt.Errorf("%w: decimals %d out of range", ErrInvalidAmount, decimals)
	}
	// plain notation only, so the size of the result is bounded by the input
	if strings.ContainsAny(s, "eE") {
		return "0", fmt.Errorf("%w: exponent notation %q", ErrInvalidAmount, display)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return "0", fmt.Errorf("%w: %q", ErrInvalidAmount, display)
	}
	if d.IsNegative() {
		return "0", fmt.Errorf("%w: negative %q", ErrInvalidAmount, display)
	}

	intPart, _, _ := strings.Cut(d.Truncate(0).String(), ".")
	if intPart = strings.TrimLeft(intPart, "0"); len(intPart)+decimals > MaxDigits {
		return "0", fmt.Errorf("%w: %q exceeds u128", ErrInvalidAmount, display)
	}
	units := d.Shift(int32(decimals)).Truncate(0).BigInt()
	if units.Cmp(maxU128) > 0 {
		return "0", fmt.Errorf("%w: %q exceeds u128", ErrInvalidAmount, display)
	}
	return units.String(), nil
}

// ToDisplayUnits converts contract units into a plain decimal string with at
// most maxFractionDigits fraction digits (truncated). Invalid input yields "0".
func ToDisplayUnits(contractUnits string, decimals, maxFractionDigits int) string {
	n, err := Parse(contractUnits)
	if err != nil || decimals < 0 {
		return "0"
	}
	if maxFractionDigits < 0 {
		maxFractionDigits = 0
	}
	return ToDecimal(n, decimals).Truncate(int32(maxFractionDigits)).String()
}

// Format renders contract units for display: thousands separators, capped
// fraction digits, and a "<0.001" style sentinel for non-zero values that
// would otherwise print as zero.
func Format(contractUnits string, decimals, maxFractionDigits int) string {
	n, err := Parse(contractUnits)
	if err != nil || decimals < 0 || n.Sign() == 0 {
		return "0"
	}
	if maxFractionDigits < 0 {
		maxFractionDigits = 0
	}

	t := ToDecimal(n, decimals).Truncate(int32(maxFractionDigits))
	if t.IsZero() {
		return "<" + smallestUnit(maxFractionDigits)
	}

	intPart, fracPart, _ := strings.Cut(t.String(), ".")
	out := groupThousands(intPart)
	if fracPart != "" {
		out += "." + fracPart
	}
	return out
}

// Parse reads a non-negative integer contract-unit string.
func Parse(contractUnits string) (*big.Int, error) {
	s := strings.TrimSpace(contractUnits)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, contractUnits)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative %q", ErrInvalidAmount, contractUnits)
	}
	return n, nil
}

// ToDecimal scales contract units down by 10^decimals.
func ToDecimal(units *big.Int, decimals int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, int32(-decimals))
}

func smallestUnit(fractionDigits int) string {
	if fractionDigits == 0 {
		return "1"
	}
	return "0." + strings.Repeat("0", fractionDigits-1) + "1"
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
