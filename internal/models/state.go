package models

import "time"

// HoldingRecord is a persisted balance. Balance is a base-10 integer.
type HoldingRecord struct {
	Token    Address `json:"token"`
	Balance  string  `json:"balance"`
	Decimals uint8   `json:"decimals"`
}

// PortfolioState is the durable part of a portfolio. Plans are never
// persisted.
type PortfolioState struct {
	Name              string  `json:"name"`
	Symbol            string  `json:"symbol"`
	Owner             Address `json:"owner"`
	ReferenceAsset    Address `json:"reference_asset"`
	ReferenceDecimals uint8   `json:"reference_decimals"`

	DepositFeeBps        uint16 `json:"deposit_fee_bps"`
	WithdrawalFeeBps     uint16 `json:"withdrawal_fee_bps"`
	SlippageToleranceBps uint16 `json:"slippage_tolerance_bps"`
	MinDriftBps          uint16 `json:"min_drift_bps"`

	Basket    []BasketEntry     `json:"basket"`
	Holdings  []HoldingRecord   `json:"holdings"`
	Fees      map[string]string `json:"fees"`
	UpdatedAt time.Time         `json:"updated_at"`
}
