package server

import (
	"time"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/wallet"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK       bool `json:"ok"`
	Sessions int  `json:"sessions"`
}

// PriceResponse represents token price information
type PriceResponse struct {
	Token     string    `json:"token"`
	Price     string    `json:"price"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// QuoteRequest asks for an estimate. Amount is in contract units; when
// AmountDisplay is set instead, tokens may be given by symbol.
type QuoteRequest struct {
	PoolID          string `json:"pool_id"`
	TokenIn         string `json:"token_in"`
	TokenOut        string `json:"token_out"`
	Amount          string `json:"amount"`
	AmountDisplay   string `json:"amount_display"`
	SlippagePercent string `json:"slippage_percent"`
}

// EstimateResponse is a SwapEstimate rendered for clients
type EstimateResponse struct {
	TokenIn            string             `json:"token_in"`
	TokenOut           string             `json:"token_out"`
	AmountIn           string             `json:"amount_in"`
	AmountOut          string             `json:"amount_out"`
	MinReceived        string             `json:"min_received"`
	AmountOutDisplay   string             `json:"amount_out_display"`
	MinReceivedDisplay string             `json:"min_received_display"`
	PriceImpact        string             `json:"price_impact"`
	HighImpact         bool               `json:"high_impact"`
	FeeBps             uint32             `json:"fee_bps"`
	SlippagePercent    string             `json:"slippage_percent"`
	Route              []models.RouteHop  `json:"route"`
	PoolSnapshotID     string             `json:"pool_snapshot_id"`
	PoolFetchedAt      time.Time          `json:"pool_fetched_at"`
	QuotedAt           time.Time          `json:"quoted_at"`
}

// QuoteResponse is the answer to the newest quote of a session
type QuoteResponse struct {
	Ticket   uint64            `json:"ticket"`
	Estimate *EstimateResponse `json:"estimate"`
}

// SwapPlanRequest asks for a swap transaction plan
type SwapPlanRequest struct {
	AccountID       string `json:"account_id"`
	PoolID          string `json:"pool_id"`
	TokenIn         string `json:"token_in"`
	TokenOut        string `json:"token_out"`
	Amount          string `json:"amount"`
	SlippagePercent string `json:"slippage_percent"`
	AllowHighImpact bool   `json:"allow_high_impact"`
}

// PlanResponse wraps a transaction plan with its estimate
type PlanResponse struct {
	Plan     *models.TransactionPlan `json:"plan"`
	Estimate *EstimateResponse       `json:"estimate,omitempty"`
}

// OutcomeRequest reports what the signer did with a plan
type OutcomeRequest struct {
	Outcomes []wallet.Outcome `json:"outcomes"`
	Error    string           `json:"error,omitempty"`
}

// OutcomeResponse is the settled state of a plan
type OutcomeResponse struct {
	PlanID   string   `json:"plan_id"`
	State    string   `json:"state"`
	TxHashes []string `json:"tx_hashes"`
	Error    string   `json:"error,omitempty"`
}

// AttemptResponse describes a tracked plan
type AttemptResponse struct {
	PlanID    string    `json:"plan_id"`
	State     string    `json:"state"`
	History   []string  `json:"history"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddLiquidityRequest asks for an add-liquidity plan
type AddLiquidityRequest struct {
	AccountID       string `json:"account_id"`
	PoolID          string `json:"pool_id"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
	SlippagePercent string `json:"slippage_percent"`
}

// RemoveLiquidityRequest asks for a remove-liquidity plan
type RemoveLiquidityRequest struct {
	AccountID       string `json:"account_id"`
	PoolID          string `json:"pool_id"`
	Shares          string `json:"shares"`
	SlippagePercent string `json:"slippage_percent"`
}

// LiquidityPreviewResponse shows what a deposit would pair with and mint
type LiquidityPreviewResponse struct {
	PoolID       string   `json:"pool_id"`
	Tokens       []string `json:"tokens"`
	Amounts      []string `json:"amounts"`
	SharesMinted string   `json:"shares_minted"`
}

// FlagUpsertRequest represents a request to create or update a flag
type FlagUpsertRequest struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// FlagUpdateRequest represents a request to update an existing flag
type FlagUpdateRequest struct {
	Value bool `json:"value"`
}
