package models

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RouteHop is one pool traversal of a route.
type RouteHop struct {
	PoolID   string `json:"pool_id"`
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
}

// SwapEstimate is the result of quoting one trade against one pool snapshot.
// It is replaced, never mutated, whenever an input changes.
type SwapEstimate struct {
	TokenIn         string
	TokenOut        string
	AmountIn        *big.Int
	AmountOut       *big.Int
	MinReceived     *big.Int
	PriceImpact     decimal.Decimal // signed percent
	HighImpact      bool
	FeeBps          uint32
	SlippagePercent decimal.Decimal
	ReserveIn       *big.Int
	ReserveOut      *big.Int
	Route           []RouteHop
	PoolSnapshotID  string
	PoolFetchedAt   time.Time
	QuotedAt        time.Time
}

// FunctionCall is one contract call inside a transaction.
type FunctionCall struct {
	MethodName string          `json:"methodName"`
	Args       json.RawMessage `json:"args"`
	Gas        string          `json:"gas"`
	Deposit    string          `json:"deposit"`
}

// Transaction groups calls that execute atomically against one receiver.
type Transaction struct {
	ReceiverID    string         `json:"receiverId"`
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// PlanKind names what a TransactionPlan does.
type PlanKind string

const (
	PlanKindSwap            PlanKind = "swap"
	PlanKindAddLiquidity    PlanKind = "add_liquidity"
	PlanKindRemoveLiquidity PlanKind = "remove_liquidity"
)

// TransactionPlan is an ordered list of transactions to sign and submit in
// sequence. Atomicity holds per transaction only.
type TransactionPlan struct {
	ID           string        `json:"id"`
	Kind         PlanKind      `json:"kind"`
	AccountID    string        `json:"accountId"`
	Transactions []Transaction `json:"transactions"`
	Estimate     *SwapEstimate `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// SwapRecord is the persisted outcome of a submitted swap plan.
type SwapRecord struct {
	PlanID      string    `json:"plan_id"`
	AccountID   string    `json:"account_id"`
	Timestamp   time.Time `json:"timestamp"`
	Pair        string    `json:"pair"`
	TokenIn     string    `json:"token_in"`
	TokenOut    string    `json:"token_out"`
	AmountIn    string    `json:"amount_in"`
	AmountOut   string    `json:"amount_out"`
	MinReceived string    `json:"min_received"`
	PriceImpact string    `json:"price_impact"`
	PoolID      string    `json:"pool_id"`
	Status      string    `json:"status"`
	TxHashes    []string  `json:"tx_hashes,omitempty"`
	Error       string    `json:"error,omitempty"`
}
