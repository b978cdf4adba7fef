package swapengine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// RiskConfig defines risk management parameters
type RiskConfig struct {
	// Price impact limits, in percent. Zero disables the cap.
	MaxPriceImpactPercent decimal.Decimal

	// High impact swaps need an explicit acknowledgement from the caller
	RequireHighImpactAck bool

	// Slippage cap, in percent. Never above constants.MaxSlippagePercent.
	MaxSlippagePercent decimal.Decimal

	// Token whitelist by account id (empty = allow all)
	AllowedTokens []string

	// Plans per account in a rolling 24h window (0 = unlimited)
	DailyPlanLimit int
}

// DefaultRiskConfig returns conservative risk settings
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPriceImpactPercent: decimal.NewFromInt(15),
		RequireHighImpactAck:  true,
		MaxSlippagePercent:    decimal.NewFromInt(constants.MaxSlippagePercent),
		DailyPlanLimit:        0,
	}
}

// RiskManager enforces risk limits
type RiskManager struct {
	config       RiskConfig
	dailyTracker *DailyLimitTracker
}

// NewRiskManager creates a risk manager with the given config
func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{
		config:       config,
		dailyTracker: NewDailyLimitTracker(),
	}
}

// CheckSwap validates a swap against all risk rules
func (rm *RiskManager) CheckSwap(req SwapRequest, est *models.SwapEstimate) *RiskCheckResult {
	result := &RiskCheckResult{
		Allowed:           true,
		MaxPriceImpact:    rm.config.MaxPriceImpactPercent,
		WhitelistedTokens: rm.config.AllowedTokens,
		HighImpact:        est.HighImpact,
		ActualPriceImpact: est.PriceImpact,
	}

	// 1. Token whitelist
	if len(rm.config.AllowedTokens) > 0 {
		if !rm.isTokenAllowed(req.TokenIn) || !rm.isTokenAllowed(req.TokenOut) {
			result.Allowed = false
			result.TokenNotWhitelisted = true
			result.Reason = fmt.Sprintf("token not whitelisted: %s or %s", req.TokenIn, req.TokenOut)
			return result
		}
	}

	// 2. Hard price impact cap
	if rm.config.MaxPriceImpactPercent.IsPositive() && est.PriceImpact.Abs().GreaterThan(rm.config.MaxPriceImpactPercent) {
		result.Allowed = false
		result.PriceImpactTooHigh = true
		result.Reason = fmt.Sprintf("price impact %s%% exceeds max %s%%",
			est.PriceImpact.StringFixed(2), rm.config.MaxPriceImpactPercent.StringFixed(2))
		return result
	}

	// 3. High impact acknowledgement
	if est.HighImpact && rm.config.RequireHighImpactAck && !req.AllowHighImpact {
		result.Allowed = false
		result.Reason = fmt.Sprintf("price impact %s%% needs acknowledgement", est.PriceImpact.StringFixed(2))
		return result
	}

	// 4. Slippage
	if rm.config.MaxSlippagePercent.IsPositive() && req.SlippagePercent.GreaterThan(rm.config.MaxSlippagePercent) {
		result.Allowed = false
		result.Reason = fmt.Sprintf("slippage %s%% exceeds max %s%%",
			req.SlippagePercent.String(), rm.config.MaxSlippagePercent.String())
		return result
	}

	// 5. Daily plan limit
	if rm.config.DailyPlanLimit > 0 && rm.dailyTracker.Usage(req.AccountID) >= rm.config.DailyPlanLimit {
		result.Allowed = false
		result.Reason = fmt.Sprintf("daily limit of %d plans reached for %s", rm.config.DailyPlanLimit, req.AccountID)
		return result
	}

	return result
}

// RecordPlan counts a built plan against the account's daily limit
func (rm *RiskManager) RecordPlan(accountID string) {
	rm.dailyTracker.Record(accountID)
}

func (rm *RiskManager) isTokenAllowed(tokenID string) bool {
	if len(rm.config.AllowedTokens) == 0 {
		return true
	}
	for _, allowed := range rm.config.AllowedTokens {
		if strings.EqualFold(allowed, tokenID) {
			return true
		}
	}
	return false
}

// DailyLimitTracker tracks rolling 24-hour usage per account
type DailyLimitTracker struct {
	mu    sync.Mutex
	plans map[string][]time.Time
	now   func() time.Time
}

// NewDailyLimitTracker creates a new tracker
func NewDailyLimitTracker() *DailyLimitTracker {
	return &DailyLimitTracker{
		plans: make(map[string][]time.Time),
		now:   time.Now,
	}
}

// Record adds one plan for accountID
func (t *DailyLimitTracker) Record(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupLocked(accountID)
	t.plans[accountID] = append(t.plans[accountID], t.now())
}

// Usage returns how many plans accountID built in the last 24 hours
func (t *DailyLimitTracker) Usage(accountID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupLocked(accountID)
	return len(t.plans[accountID])
}

// cleanupLocked removes entries older than 24 hours
func (t *DailyLimitTracker) cleanupLocked(accountID string) {
	cutoff := t.now().Add(-24 * time.Hour)
	kept := t.plans[accountID][:0]
	for _, ts := range t.plans[accountID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(t.plans, accountID)
		return
	}
	t.plans[accountID] = kept
}
