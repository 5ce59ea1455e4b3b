package amount

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// BpsDenominator is 100% expressed in basis points.
const BpsDenominator = 10_000

var u256BpsDenom = uint256.NewInt(BpsDenominator)

// Ratio is a fixed-point fraction Num/Den.
type Ratio struct {
	Num uint64
	Den uint64
}

// FromReadablePercent turns a basis-point value into a ratio over 10_000.
func FromReadablePercent(bps uint16) (Ratio, error) {
	if bps > BpsDenominator {
		return Ratio{}, fmt.Errorf("%w: %d bps exceeds 100%%", ErrPrecision, bps)
	}
	return Ratio{Num: uint64(bps), Den: BpsDenominator}, nil
}

// MustBps is FromReadablePercent for values known to be in range.
func MustBps(bps uint16) Ratio {
	r, err := FromReadablePercent(bps)
	if err != nil {
		panic(err)
	}
	return r
}

// Complement returns 1 - r.
func (r Ratio) Complement() Ratio {
	return Ratio{Num: r.Den - r.Num, Den: r.Den}
}

// Apply returns x*Num/Den, truncated toward zero. The intermediate product
// is computed in 512 bits so it never overflows.
func (r Ratio) Apply(x *uint256.Int) *uint256.Int {
	if x == nil || r.Den == 0 {
		return new(uint256.Int)
	}
	z, _ := new(uint256.Int).MulDivOverflow(x, uint256.NewInt(r.Num), uint256.NewInt(r.Den))
	return z
}

// Decimal returns the ratio as an exact decimal fraction.
func (r Ratio) Decimal() decimal.Decimal {
	if r.Den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.Num)).Div(decimal.NewFromInt(int64(r.Den)))
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// ParsePercent converts a readable percent such as "0.5" or "0.5%" into
// basis points. More than two fractional digits cannot be represented.
func ParsePercent(s string) (uint16, error) {
	d, err := ParseDecimal(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return 0, err
	}
	bps := d.Shift(2)
	if !bps.Equal(bps.Truncate(0)) {
		return 0, fmt.Errorf("%w: percent %q finer than one basis point", ErrPrecision, s)
	}
	if bps.GreaterThan(decimal.NewFromInt(BpsDenominator)) {
		return 0, fmt.Errorf("%w: percent %q exceeds 100%%", ErrPrecision, s)
	}
	return uint16(bps.IntPart()), nil
}

// MulBps returns x*bps/10_000, truncated.
func MulBps(x *uint256.Int, bps uint16) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	z, _ := new(uint256.Int).MulDivOverflow(x, uint256.NewInt(uint64(bps)), u256BpsDenom)
	return z
}
