package amount

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// TradeAmount is a raw integer amount together with the decimal count of
// the token it is denominated in.
type TradeAmount struct {
	Raw      *uint256.Int
	Decimals uint8
}

// NewTradeAmount converts a readable decimal into a TradeAmount.
func NewTradeAmount(value decimal.Decimal, decimals uint8) (TradeAmount, error) {
	raw, err := ToBaseUnits(value, decimals)
	if err != nil {
		return TradeAmount{}, err
	}
	return TradeAmount{Raw: raw, Decimals: decimals}, nil
}

// Zero returns a zero amount with the given decimals.
func Zero(decimals uint8) TradeAmount {
	return TradeAmount{Raw: new(uint256.Int), Decimals: decimals}
}

func (a TradeAmount) IsZero() bool {
	return a.Raw == nil || a.Raw.IsZero()
}

// Readable returns the human-readable value.
func (a TradeAmount) Readable() decimal.Decimal {
	return FromBaseUnits(a.Raw, a.Decimals)
}

func (a TradeAmount) String() string {
	if a.Raw == nil {
		return "0"
	}
	return a.Raw.Dec()
}

type tradeAmountJSON struct {
	Raw      string `json:"raw"`
	Decimals uint8  `json:"decimals"`
	Readable string `json:"readable"`
}

func (a TradeAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(tradeAmountJSON{
		Raw:      a.String(),
		Decimals: a.Decimals,
		Readable: a.Readable().String(),
	})
}

func (a *TradeAmount) UnmarshalJSON(b []byte) error {
	var v tradeAmountJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	raw, err := uint256.FromDecimal(v.Raw)
	if err != nil {
		return fmt.Errorf("%w: raw amount %q", ErrPrecision, v.Raw)
	}
	a.Raw = raw
	a.Decimals = v.Decimals
	return nil
}
