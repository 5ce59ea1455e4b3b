// Package amount converts human-readable decimal amounts into integer base
// units and applies basis-point ratios with integer arithmetic only.
package amount

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ErrPrecision reports malformed or unrepresentable numeric input.
var ErrPrecision = errors.New("precision error")

// MaxDecimals is the largest decimal count whose scale fits in 256 bits.
const MaxDecimals = 77

var bigTen = big.NewInt(10)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

// ParseDecimal parses a non-negative decimal string such as "0.001".
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrPrecision)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed amount %q", ErrPrecision, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amount %q", ErrPrecision, s)
	}
	return d, nil
}

// fractionalDigits is the count of digits after the decimal point in the
// representation of d.
func fractionalDigits(d decimal.Decimal) int {
	if exp := d.Exponent(); exp < 0 {
		return int(-exp)
	}
	return 0
}

// ToBaseUnits converts value into base units of a token with the given
// decimal count. With d fractional digits in value the result is
// round(value*10^d) * 10^decimals / 10^d, rounded half-up to the nearest
// base unit when d exceeds decimals.
func ToBaseUnits(value decimal.Decimal, decimals uint8) (*uint256.Int, error) {
	if value.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrPrecision, value.String())
	}
	if decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: %d decimals exceeds %d", ErrPrecision, decimals, MaxDecimals)
	}

	d := fractionalDigits(value)
	scale := pow10(d)
	raw := value.Shift(int32(d)).Round(0).BigInt()

	out := new(big.Int).Mul(raw, pow10(int(decimals)))
	// half-up: add scale/2 before the integer division
	out.Add(out, new(big.Int).Rsh(scale, 1))
	out.Quo(out, scale)

	res, overflow := uint256.FromBig(out)
	if overflow {
		return nil, fmt.Errorf("%w: %s with %d decimals overflows 256 bits", ErrPrecision, value.String(), decimals)
	}
	return res, nil
}

// ToBaseUnitsString parses s and converts it with ToBaseUnits.
func ToBaseUnitsString(s string, decimals uint8) (*uint256.Int, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return nil, err
	}
	return ToBaseUnits(d, decimals)
}

// ToBaseUnitsFloat converts a float amount using its shortest decimal
// representation, so 0.001 counts three fractional digits.
func ToBaseUnitsFloat(f float64, decimals uint8) (*uint256.Int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite amount", ErrPrecision)
	}
	if f < 0 {
		return nil, fmt.Errorf("%w: negative amount %v", ErrPrecision, f)
	}
	return ToBaseUnits(decimal.NewFromFloat(f), decimals)
}

// FromBaseUnits is the reporting inverse of ToBaseUnits.
func FromBaseUnits(raw *uint256.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw.ToBig(), -int32(decimals))
}
