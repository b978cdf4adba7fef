package swapengine

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/wallet"
)

var (
	ErrInvalidPair             = errors.New("input and output token must differ")
	ErrInvalidPlan             = errors.New("invalid transaction plan")
	ErrStaleEstimate           = fmt.Errorf("%w: estimate is stale", ErrInvalidPlan)
	ErrRegistrationCheckFailed = errors.New("registration check failed")
	ErrSupersededRequest       = errors.New("superseded by a newer request")
	ErrIllegalTransition       = errors.New("illegal swap state transition")
	ErrRiskRejected            = errors.New("rejected by risk policy")
	ErrUnknownPlan             = errors.New("unknown plan")
	ErrDisabled                = errors.New("disabled by operator")
)

// SwapIntent is a trade described in display units and token symbols or ids,
// the way a user or a CLI flag states it.
type SwapIntent struct {
	InputToken      string // symbol ("NEAR") or account id ("wrap.near")
	OutputToken     string
	Amount          string // display units, e.g. "1.5"
	SlippagePercent *decimal.Decimal
	PoolID          string
	AccountID       string
	AllowHighImpact bool
	RequestedAt     time.Time
}

// QuoteRequest asks for an estimate against one pool
type QuoteRequest struct {
	PoolID          string
	TokenIn         string
	TokenOut        string
	AmountIn        *big.Int // contract units
	SlippagePercent decimal.Decimal
}

// QuoteResult is the answer to the latest QuoteRequest of a session.
// Estimate is nil when the amount was not positive.
type QuoteResult struct {
	Ticket   uint64
	Estimate *models.SwapEstimate
	TokenIn  models.Token
	TokenOut models.Token
}

// SwapRequest asks for a signed-ready swap plan
type SwapRequest struct {
	AccountID       string
	PoolID          string
	TokenIn         string
	TokenOut        string
	AmountIn        *big.Int
	SlippagePercent decimal.Decimal
	AllowHighImpact bool
}

// SwapPlanRequest is what the builder needs to turn an estimate into a plan
type SwapPlanRequest struct {
	AccountID       string
	TokenIn         string
	TokenOut        string
	AmountIn        *big.Int
	SlippagePercent decimal.Decimal
	Estimate        *models.SwapEstimate
}

// AddLiquidityRequest deposits Amount of Token plus the matching amount of
// the other pool token.
type AddLiquidityRequest struct {
	AccountID       string
	PoolID          string
	Token           string
	Amount          *big.Int
	SlippagePercent decimal.Decimal
}

// RemoveLiquidityRequest burns Shares and withdraws both tokens
type RemoveLiquidityRequest struct {
	AccountID       string
	PoolID          string
	Shares          *big.Int
	SlippagePercent decimal.Decimal
}

// ExecutionResult is the settled outcome of a plan
type ExecutionResult struct {
	PlanID   string
	State    SwapState
	TxHashes []string
	Outcomes []wallet.Outcome
	Error    string
	Duration time.Duration
}

// RiskCheckResult contains risk validation outcome
type RiskCheckResult struct {
	Allowed bool
	Reason  string

	TokenNotWhitelisted bool
	WhitelistedTokens   []string

	HighImpact         bool
	PriceImpactTooHigh bool
	MaxPriceImpact     decimal.Decimal
	ActualPriceImpact  decimal.Decimal
}
