package constants

import "time"

// Redis keys
const (
	RedisKeyRecentSwaps = "swaps:recent"
)

// Redis Pub/Sub channels
const (
	PubSubChannelEvents = "ref:events"
	PubSubChannelSwaps  = "ref:swaps"
)

// Limits
const (
	MaxRecentSwaps = 100
)

// Fee and slippage bounds
const (
	FeeDivisor          = 10000 // pool fees are expressed in basis points
	MaxSlippagePercent  = 50
	HighImpactThreshold = 5 // percent
)

// Quote freshness
const (
	DefaultMaxQuoteAge = 30 * time.Second
)

// NEAR account ids used when no config overrides them
const (
	NativeTokenID           = "near"
	DefaultExchangeContract = "v2.ref-finance.near"
	DefaultDCLContract      = "dclv2.ref-labs.near"
	DefaultWrapNearContract = "wrap.near"
)

// Contract method names
const (
	MethodGetPool          = "get_pool"
	MethodFtMetadata       = "ft_metadata"
	MethodStorageBalanceOf = "storage_balance_of"
	MethodStorageDeposit   = "storage_deposit"
	MethodFtTransferCall   = "ft_transfer_call"
	MethodNearDeposit      = "near_deposit"
	MethodAddLiquidity     = "add_liquidity"
	MethodRemoveLiquidity  = "remove_liquidity"
	MethodWithdraw         = "withdraw"
)

// Attached gas per call, in gas units. Tuned empirically against mainnet.
const (
	GasStorageDeposit   = "30000000000000"
	GasNearDeposit      = "50000000000000"
	GasFtTransferCall   = "180000000000000"
	GasLiquidityDeposit = "100000000000000"
	GasAddLiquidity     = "150000000000000"
	GasRemoveLiquidity  = "150000000000000"
	GasWithdraw         = "100000000000000"
)

// Attached deposits, in yoctoNEAR.
const (
	DepositOneYocto        = "1"
	DepositStorageFT       = "100000000000000000000000" // 0.1 NEAR, excess refunded with registration_only
	DepositStorageExchange = "100000000000000000000000" // 0.1 NEAR
	DepositLPStorage       = "10000000000000000000000"  // 0.01 NEAR
)

// Pool kinds as reported by the exchange contract and indexer.
const (
	PoolKindSimple       = "SIMPLE_POOL"
	PoolKindConcentrated = "DCL_POOL"
)
