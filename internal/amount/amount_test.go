package amount

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		decimals uint8
		expected string
	}{
		{name: "one thousandth with 18 decimals", value: "0.001", decimals: 18, expected: "1000000000000000"},
		{name: "integer with 18 decimals", value: "10", decimals: 18, expected: "10000000000000000000"},
		{name: "usdc style", value: "1.5", decimals: 6, expected: "1500000"},
		{name: "zero", value: "0", decimals: 18, expected: "0"},
		{name: "trailing zeros", value: "2.500", decimals: 6, expected: "2500000"},
		{name: "zero decimals", value: "42", decimals: 0, expected: "42"},
		{name: "rounds half up below one unit", value: "0.0000015", decimals: 6, expected: "2"},
		{name: "rounds down below half a unit", value: "0.0000014", decimals: 6, expected: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToBaseUnitsString(tt.value, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Dec())
		})
	}
}

func TestToBaseUnitsFloatMatchesString(t *testing.T) {
	for _, f := range []float64{0.001, 10, 0.1, 123.456, 1e-9} {
		fromFloat, err := ToBaseUnitsFloat(f, 18)
		require.NoError(t, err)
		fromString, err := ToBaseUnits(decimal.NewFromFloat(f), 18)
		require.NoError(t, err)
		assert.Equal(t, fromString, fromFloat, "value %v", f)
	}

	got, err := ToBaseUnitsFloat(0.001, 18)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(1_000_000_000_000_000), got)
}

func TestToBaseUnitsRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "abc", "-1", "1.2.3", "  "} {
		_, err := ToBaseUnitsString(s, 18)
		assert.ErrorIs(t, err, ErrPrecision, "input %q", s)
	}

	for _, f := range []float64{-0.5, math.NaN(), math.Inf(1)} {
		_, err := ToBaseUnitsFloat(f, 18)
		assert.ErrorIs(t, err, ErrPrecision, "input %v", f)
	}

	_, err := ToBaseUnitsString("1", MaxDecimals+1)
	assert.ErrorIs(t, err, ErrPrecision)

	// 10^60 * 10^18 does not fit in 256 bits
	_, err = ToBaseUnitsString("1000000000000000000000000000000000000000000000000000000000000", 18)
	assert.ErrorIs(t, err, ErrPrecision)
}

func TestFromBaseUnits(t *testing.T) {
	raw, err := ToBaseUnitsString("123.456", 18)
	require.NoError(t, err)
	assert.True(t, FromBaseUnits(raw, 18).Equal(decimal.RequireFromString("123.456")))
	assert.True(t, FromBaseUnits(nil, 18).IsZero())
}

func TestRatio(t *testing.T) {
	r, err := FromReadablePercent(100)
	require.NoError(t, err)
	assert.Equal(t, Ratio{Num: 100, Den: 10_000}, r)
	assert.Equal(t, Ratio{Num: 9_900, Den: 10_000}, r.Complement())
	assert.True(t, r.Decimal().Equal(decimal.RequireFromString("0.01")))

	gross, _ := uint256.FromDecimal("10000000000000000000")
	assert.Equal(t, "100000000000000000", r.Apply(gross).Dec())
	assert.Equal(t, "9900000000000000000", r.Complement().Apply(gross).Dec())

	_, err = FromReadablePercent(10_001)
	assert.ErrorIs(t, err, ErrPrecision)
	assert.Panics(t, func() { MustBps(20_000) })
}

func TestRatioApplyDoesNotOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	got := MustBps(5_000).Apply(max)
	expected := new(uint256.Int).Rsh(max, 1)
	assert.Equal(t, expected, got)
	assert.Equal(t, expected, MulBps(max, 5_000))
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in      string
		bps     uint16
		wantErr bool
	}{
		{in: "0.5", bps: 50},
		{in: "0.5%", bps: 50},
		{in: "5", bps: 500},
		{in: "100", bps: 10_000},
		{in: "0.01", bps: 1},
		{in: "0.005", wantErr: true},
		{in: "100.01", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePercent(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrPrecision, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.bps, got, "input %q", tt.in)
	}
}

func TestTradeAmountJSON(t *testing.T) {
	a, err := NewTradeAmount(decimal.RequireFromString("1.25"), 6)
	require.NoError(t, err)

	b, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":"1250000","decimals":6,"readable":"1.25"}`, string(b))

	var back TradeAmount
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, a.Raw, back.Raw)
	assert.Equal(t, a.Decimals, back.Decimals)
	assert.True(t, Zero(18).IsZero())
}
