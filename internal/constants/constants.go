package constants

import "time"

// Redis keys
const (
	RedisKeyPortfolioIndex  = "portfolios:index"
	RedisKeyPortfolioPrefix = "portfolio:"
	RedisKeyControlsPrefix  = "controls:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelLegs       = "rebalance:legs"
	PubSubChannelRebalances = "rebalance:runs"
	PubSubChannelFees       = "fees:withdrawals"
	PubSubPortfolioPrefix   = "rebalance:portfolio:"
)

// ClickHouse tables
const (
	TableRebalanceLegs  = "rebalance_legs"
	TableFeeWithdrawals = "fee_withdrawals"
)

// Defaults
const (
	DefaultSlippageToleranceBps = 50
	DefaultMinDriftBps          = 50
	StoreTimeout                = 3 * time.Second
)
