package swapengine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/flags"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/ref"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/storage"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/wallet"
)

// PoolSource reads pool snapshots
type PoolSource interface {
	GetPool(ctx context.Context, poolID string) (models.Pool, error)
	GetSimplePool(ctx context.Context, poolID string) (*models.SimplePool, error)
}

// EngineConfig holds configuration for the swap engine
type EngineConfig struct {
	ExchangeContract string
	WrapNearContract string
	DefaultPoolID    string

	DefaultSlippagePercent decimal.Decimal
	MaxQuoteAge            time.Duration
	Costs                  ref.CallCosts

	// Session and plan bookkeeping
	SessionIdleTTL time.Duration
	MaxSessions    int
	MaxAttempts    int

	// Confirmation of signer-reported outcomes on chain
	ConfirmTimeout time.Duration

	RiskConfig RiskConfig
}

// DefaultEngineConfig returns sensible defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ExchangeContract:       constants.DefaultExchangeContract,
		WrapNearContract:       constants.DefaultWrapNearContract,
		DefaultPoolID:          "79",
		DefaultSlippagePercent: decimal.RequireFromString("0.5"),
		MaxQuoteAge:            constants.DefaultMaxQuoteAge,
		SessionIdleTTL:         10 * time.Minute,
		MaxSessions:            10000,
		MaxAttempts:            5000,
		ConfirmTimeout:         60 * time.Second,
		RiskConfig:             DefaultRiskConfig(),
	}
}

// EngineDeps are the collaborators the engine is built from. Recorder,
// Publisher, Flags and Confirmer are optional.
type EngineDeps struct {
	Pools     PoolSource
	Tokens    TokenResolver
	Storage   StorageChecker
	Recorder  storage.SwapRecorder
	Publisher events.Publisher
	Flags     flags.Reader
	Confirmer Confirmer
	Logger    *logrus.Logger
}

// Engine is the main orchestrator for swap operations
type Engine struct {
	cfg       EngineConfig
	pools     PoolSource
	tokens    TokenResolver
	flags     flags.Reader
	publisher events.Publisher
	logger    *logrus.Logger

	decisionEngine *DecisionEngine
	builder        *Builder
	executor       *Executor
	riskManager    *RiskManager
	sessions       *Sessions

	mu       sync.Mutex
	attempts map[string]*Attempt
}

// NewEngine creates a new swap engine with all dependencies
func NewEngine(cfg EngineConfig, deps EngineDeps) (*Engine, error) {
	if deps.Pools == nil {
		return nil, fmt.Errorf("pool source is nil")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token resolver is nil")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage checker is nil")
	}
	if err := ref.ValidateSlippage(cfg.DefaultSlippagePercent); err != nil {
		return nil, fmt.Errorf("default slippage: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.WrapNearContract == "" {
		cfg.WrapNearContract = constants.DefaultWrapNearContract
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5000
	}
	fl := deps.Flags
	if fl == nil {
		fl = flags.NewMemoryStore()
	}

	resolver := NewRegistrationResolver(deps.Storage, cfg.Costs, logger)
	builder := NewBuilder(BuilderConfig{
		ExchangeContract: cfg.ExchangeContract,
		WrapNearContract: cfg.WrapNearContract,
		MaxQuoteAge:      cfg.MaxQuoteAge,
		Costs:            cfg.Costs,
	}, resolver, logger)
	executor := NewExecutor(deps.Recorder, deps.Publisher, logger)
	if deps.Confirmer != nil {
		executor.WithConfirmer(deps.Confirmer, cfg.ConfirmTimeout)
	}

	return &Engine{
		cfg:            cfg,
		pools:          deps.Pools,
		tokens:         deps.Tokens,
		flags:          fl,
		publisher:      deps.Publisher,
		logger:         logger,
		decisionEngine: NewDecisionEngine(deps.Tokens, cfg.DefaultSlippagePercent, cfg.DefaultPoolID),
		builder:        builder,
		executor:       executor,
		riskManager:    NewRiskManager(cfg.RiskConfig),
		sessions:       NewSessions(cfg.SessionIdleTTL, cfg.MaxSessions),
		attempts:       make(map[string]*Attempt),
	}, nil
}

// ParseIntent converts a display-unit intent into a quote request
func (e *Engine) ParseIntent(ctx context.Context, intent *SwapIntent) (*ParsedIntent, error) {
	return e.decisionEngine.ParseIntent(ctx, intent)
}

// contract maps the native token to its wrapper
func (e *Engine) contract(tokenID string) string {
	if tokenID == constants.NativeTokenID {
		return e.cfg.WrapNearContract
	}
	return tokenID
}

func (e *Engine) poolID(id string) string {
	if id == "" {
		return e.cfg.DefaultPoolID
	}
	return id
}

func (e *Engine) checkPair(tokenIn, tokenOut string) error {
	if strings.TrimSpace(tokenIn) == "" || strings.TrimSpace(tokenOut) == "" {
		return fmt.Errorf("%w: input/output token required", ErrInvalidPair)
	}
	if e.contract(tokenIn) == e.contract(tokenOut) {
		return ErrInvalidPair
	}
	return nil
}

func (e *Engine) checkEnabled(ctx context.Context, feature, poolID string) error {
	if !e.flags.IsEnabled(ctx, feature, true) {
		return fmt.Errorf("%w: %s", ErrDisabled, feature)
	}
	if e.flags.IsEnabled(ctx, flags.PoolDisabledKey(poolID), false) {
		return fmt.Errorf("%w: pool %s", ErrDisabled, poolID)
	}
	return nil
}

// Quote estimates req against a fresh pool snapshot. Within one session only
// the newest request returns a result; older in-flight ones fail with
// ErrSupersededRequest.
func (e *Engine) Quote(ctx context.Context, session string, req QuoteRequest) (*QuoteResult, error) {
	seq := e.sessions.For(session)
	ticket := seq.Next()

	// a newer request owns the session's answer, errors included
	settle := func(err error) error {
		if !seq.IsLatest(ticket) {
			return ErrSupersededRequest
		}
		return err
	}

	if err := e.checkPair(req.TokenIn, req.TokenOut); err != nil {
		return nil, settle(err)
	}
	poolID := e.poolID(req.PoolID)
	if err := e.checkEnabled(ctx, flags.KeySwapsEnabled, poolID); err != nil {
		return nil, settle(err)
	}

	in, err := e.tokens.Resolve(ctx, req.TokenIn)
	if err != nil {
		return nil, settle(fmt.Errorf("input token: %w", err))
	}
	out, err := e.tokens.Resolve(ctx, req.TokenOut)
	if err != nil {
		return nil, settle(fmt.Errorf("output token: %w", err))
	}
	result := &QuoteResult{Ticket: ticket, TokenIn: in, TokenOut: out}

	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		if err := settle(nil); err != nil {
			return nil, err
		}
		return result, nil
	}

	pool, err := e.pools.GetSimplePool(ctx, poolID)
	if err != nil {
		return nil, settle(err)
	}
	est, err := ref.Estimate(ref.EstimateRequest{
		TokenIn:         e.contract(req.TokenIn),
		TokenOut:        e.contract(req.TokenOut),
		AmountIn:        req.AmountIn,
		SlippagePercent: req.SlippagePercent,
	}, pool)
	if err := settle(err); err != nil {
		return nil, err
	}
	result.Estimate = est

	e.publish(events.New(events.QuoteUpdated, poolID, quotePayload(est)), "")
	return result, nil
}

// PrepareSwap re-reads the pool, re-estimates, applies the risk policy and
// builds the plan. The returned plan is tracked until its outcome is reported.
func (e *Engine) PrepareSwap(ctx context.Context, req SwapRequest) (*models.TransactionPlan, error) {
	if err := e.checkPair(req.TokenIn, req.TokenOut); err != nil {
		return nil, err
	}
	poolID := e.poolID(req.PoolID)
	if err := e.checkEnabled(ctx, flags.KeySwapsEnabled, poolID); err != nil {
		return nil, err
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrInvalidPlan)
	}

	attempt := NewAttempt("")
	if err := attempt.Transition(StateEstimating); err != nil {
		return nil, err
	}

	pool, err := e.pools.GetSimplePool(ctx, poolID)
	if err != nil {
		_ = attempt.Fail(err)
		return nil, err
	}
	est, err := ref.Estimate(ref.EstimateRequest{
		TokenIn:         e.contract(req.TokenIn),
		TokenOut:        e.contract(req.TokenOut),
		AmountIn:        req.AmountIn,
		SlippagePercent: req.SlippagePercent,
	}, pool)
	if err != nil {
		_ = attempt.Fail(err)
		return nil, err
	}
	attempt.SetEstimate(est)

	check := e.riskManager.CheckSwap(req, est)
	if !check.Allowed {
		e.logger.WithFields(logrus.Fields{
			"account": req.AccountID,
			"pool":    poolID,
			"impact":  est.PriceImpact.StringFixed(4),
		}).Warn("swap rejected: " + check.Reason)
		return nil, fmt.Errorf("%w: %s", ErrRiskRejected, check.Reason)
	}

	plan, err := e.builder.BuildSwapPlan(ctx, SwapPlanRequest{
		AccountID:       req.AccountID,
		TokenIn:         req.TokenIn,
		TokenOut:        req.TokenOut,
		AmountIn:        req.AmountIn,
		SlippagePercent: req.SlippagePercent,
		Estimate:        est,
	})
	if err != nil {
		_ = attempt.Fail(err)
		return nil, err
	}

	if err := e.track(attempt, plan); err != nil {
		return nil, err
	}
	e.riskManager.RecordPlan(req.AccountID)

	e.logger.WithFields(logrus.Fields{
		"plan":    plan.ID,
		"account": plan.AccountID,
		"pool":    poolID,
		"txs":     len(plan.Transactions),
		"out":     est.AmountOut.String(),
	}).Info("swap plan built")
	return plan, nil
}

// PrepareAddLiquidity builds a plan depositing req.Amount of req.Token and
// the ratio-matching amount of the other pool token.
func (e *Engine) PrepareAddLiquidity(ctx context.Context, req AddLiquidityRequest) (*models.TransactionPlan, error) {
	poolID := e.poolID(req.PoolID)
	if err := e.checkEnabled(ctx, flags.KeyLiquidityEnabled, poolID); err != nil {
		return nil, err
	}
	pool, err := e.pools.GetSimplePool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	plan, err := e.builder.BuildAddLiquidityPlan(ctx, req, pool)
	if err != nil {
		return nil, err
	}
	if err := e.track(NewAttempt(""), plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// PrepareRemoveLiquidity builds a plan burning req.Shares
func (e *Engine) PrepareRemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) (*models.TransactionPlan, error) {
	poolID := e.poolID(req.PoolID)
	if err := e.checkEnabled(ctx, flags.KeyLiquidityEnabled, poolID); err != nil {
		return nil, err
	}
	pool, err := e.pools.GetSimplePool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	plan, err := e.builder.BuildRemoveLiquidityPlan(ctx, req, pool)
	if err != nil {
		return nil, err
	}
	if err := e.track(NewAttempt(""), plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Execute signs and submits a tracked plan through signer
func (e *Engine) Execute(ctx context.Context, planID string, signer wallet.Signer) (*ExecutionResult, error) {
	attempt, ok := e.Attempt(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	return e.executor.Execute(ctx, attempt, signer)
}

// ReportOutcome settles a tracked plan that was signed outside the engine
func (e *Engine) ReportOutcome(ctx context.Context, planID string, outcomes []wallet.Outcome, signErr error) (*ExecutionResult, error) {
	attempt, ok := e.Attempt(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	return e.executor.Settle(ctx, attempt, outcomes, signErr)
}

// Attempt returns the tracked attempt for planID
func (e *Engine) Attempt(planID string) (*Attempt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.attempts[planID]
	return a, ok
}

// Pool returns a fresh snapshot of poolID, or of the default pool
func (e *Engine) Pool(ctx context.Context, poolID string) (models.Pool, error) {
	return e.pools.GetPool(ctx, e.poolID(poolID))
}

// Sessions returns how many quote sessions are tracked
func (e *Engine) Sessions() int { return e.sessions.Len() }

// DefaultSlippage is applied when a request leaves slippage unset
func (e *Engine) DefaultSlippage() decimal.Decimal { return e.cfg.DefaultSlippagePercent }

// WrapNearContract is the wrapper that stands in for native NEAR in pools
func (e *Engine) WrapNearContract() string { return e.cfg.WrapNearContract }

func (e *Engine) track(attempt *Attempt, plan *models.TransactionPlan) error {
	attempt.id = plan.ID
	if attempt.State() == StateIdle {
		if err := attempt.Transition(StateEstimating); err != nil {
			return err
		}
	}
	if err := attempt.Transition(StateReady); err != nil {
		return err
	}
	attempt.SetPlan(plan)

	e.mu.Lock()
	if len(e.attempts) >= e.cfg.MaxAttempts {
		e.evictLocked()
	}
	e.attempts[plan.ID] = attempt
	e.mu.Unlock()

	poolID := ""
	if plan.Estimate != nil && len(plan.Estimate.Route) > 0 {
		poolID = plan.Estimate.Route[0].PoolID
	}
	e.publish(events.New(events.PlanBuilt, poolID, plan), plan.ID)
	return nil
}

// evictLocked drops settled attempts first, then the oldest ones, until a
// quarter of the table is free.
func (e *Engine) evictLocked() {
	target := e.cfg.MaxAttempts * 3 / 4
	for id, a := range e.attempts {
		if a.State().Terminal() {
			delete(e.attempts, id)
		}
	}
	if len(e.attempts) <= target {
		return
	}
	type aged struct {
		id string
		at time.Time
	}
	all := make([]aged, 0, len(e.attempts))
	for id, a := range e.attempts {
		all = append(all, aged{id, a.UpdatedAt()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, x := range all[:len(all)-target] {
		delete(e.attempts, x.id)
	}
}

func (e *Engine) publish(ev events.Event, planID string) {
	if e.publisher == nil {
		return
	}
	ev.PlanID = planID
	if err := e.publisher.Publish(ev); err != nil {
		e.logger.WithError(err).WithField("type", ev.Type).Debug("event not published")
	}
}

// QuotePayload is the event body of a QuoteUpdated event
type QuotePayload struct {
	TokenIn     string `json:"token_in"`
	TokenOut    string `json:"token_out"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
	MinReceived string `json:"min_received"`
	PriceImpact string `json:"price_impact"`
	HighImpact  bool   `json:"high_impact"`
	SnapshotID  string `json:"snapshot_id"`
}

func quotePayload(est *models.SwapEstimate) QuotePayload {
	return QuotePayload{
		TokenIn:     est.TokenIn,
		TokenOut:    est.TokenOut,
		AmountIn:    est.AmountIn.String(),
		AmountOut:   est.AmountOut.String(),
		MinReceived: est.MinReceived.String(),
		PriceImpact: est.PriceImpact.String(),
		HighImpact:  est.HighImpact,
		SnapshotID:  est.PoolSnapshotID,
	}
}
