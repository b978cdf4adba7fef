package server

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/amount"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/ref"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

// SessionHeader scopes quote superseding to one client
const SessionHeader = "X-Session-ID"

// displayDigits is how many fraction digits formatted amounts keep
const displayDigits = 6

// sessionOf identifies the quoting client, falling back to its address
func sessionOf(c echo.Context) string {
	if s := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); s != "" {
		return s
	}
	return c.RealIP()
}

func (h *Handlers) toEstimateResponse(est *models.SwapEstimate, out models.Token) *EstimateResponse {
	if est == nil {
		return nil
	}
	resp := &EstimateResponse{
		TokenIn:         est.TokenIn,
		TokenOut:        est.TokenOut,
		AmountIn:        est.AmountIn.String(),
		AmountOut:       est.AmountOut.String(),
		PriceImpact:     est.PriceImpact.String(),
		HighImpact:      est.HighImpact,
		FeeBps:          est.FeeBps,
		SlippagePercent: est.SlippagePercent.String(),
		Route:           est.Route,
		PoolSnapshotID:  est.PoolSnapshotID,
		PoolFetchedAt:   est.PoolFetchedAt,
		QuotedAt:        est.QuotedAt,
	}
	if est.MinReceived != nil {
		resp.MinReceived = est.MinReceived.String()
	}
	if out.ID != "" {
		resp.AmountOutDisplay = amount.Format(resp.AmountOut, out.Decimals, displayDigits)
		if resp.MinReceived != "" {
			resp.MinReceivedDisplay = amount.Format(resp.MinReceived, out.Decimals, displayDigits)
		}
	}
	return resp
}

// outputToken resolves tokenID for display, returning the zero Token on failure
func (h *Handlers) outputToken(ctx context.Context, tokenID string) models.Token {
	tok, err := h.Tokens.Resolve(ctx, tokenID)
	if err != nil {
		return models.Token{}
	}
	return tok
}

// quoteRequest turns the HTTP body into an engine request. A display amount
// goes through intent parsing so tokens may be named by symbol.
func (h *Handlers) quoteRequest(ctx context.Context, req QuoteRequest) (swapengine.QuoteRequest, error) {
	slippage, err := parseSlippage(req.SlippagePercent, h.Engine.DefaultSlippage())
	if err != nil {
		return swapengine.QuoteRequest{}, ref.ErrInvalidSlippage
	}

	if strings.TrimSpace(req.AmountDisplay) != "" {
		parsed, err := h.Engine.ParseIntent(ctx, &swapengine.SwapIntent{
			InputToken:      req.TokenIn,
			OutputToken:     req.TokenOut,
			Amount:          req.AmountDisplay,
			SlippagePercent: &slippage,
			PoolID:          req.PoolID,
			RequestedAt:     time.Now(),
		})
		if err != nil {
			return swapengine.QuoteRequest{}, err
		}
		return parsed.Quote, nil
	}

	amountIn := new(big.Int)
	if strings.TrimSpace(req.Amount) != "" {
		if amountIn, err = amount.Parse(req.Amount); err != nil {
			return swapengine.QuoteRequest{}, err
		}
	}
	return swapengine.QuoteRequest{
		PoolID:          req.PoolID,
		TokenIn:         req.TokenIn,
		TokenOut:        req.TokenOut,
		AmountIn:        amountIn,
		SlippagePercent: slippage,
	}, nil
}

// Quote estimates a swap. Only the newest quote of a session is answered;
// older concurrent ones get 409.
func (h *Handlers) Quote(c echo.Context) error {
	var body QuoteRequest
	if err := c.Bind(&body); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if strings.TrimSpace(body.TokenIn) == "" || strings.TrimSpace(body.TokenOut) == "" {
		return h.err(c, http.StatusBadRequest, "token_in and token_out are required", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	req, err := h.quoteRequest(ctx, body)
	if err != nil {
		return h.fail(c, "invalid quote request", err)
	}
	res, err := h.Engine.Quote(ctx, sessionOf(c), req)
	if err != nil {
		return h.fail(c, "quote failed", err)
	}
	return c.JSON(http.StatusOK, QuoteResponse{
		Ticket:   res.Ticket,
		Estimate: h.toEstimateResponse(res.Estimate, res.TokenOut),
	})
}

// SwapPlan builds a transaction plan for a swap given in contract units
func (h *Handlers) SwapPlan(c echo.Context) error {
	var body SwapPlanRequest
	if err := c.Bind(&body); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	amountIn, err := amount.Parse(body.Amount)
	if err != nil {
		return h.fail(c, "invalid amount", err)
	}
	slippage, err := parseSlippage(body.SlippagePercent, h.Engine.DefaultSlippage())
	if err != nil {
		return h.fail(c, "invalid slippage", ref.ErrInvalidSlippage)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	plan, err := h.Engine.PrepareSwap(ctx, swapengine.SwapRequest{
		AccountID:       body.AccountID,
		PoolID:          body.PoolID,
		TokenIn:         body.TokenIn,
		TokenOut:        body.TokenOut,
		AmountIn:        amountIn,
		SlippagePercent: slippage,
		AllowHighImpact: body.AllowHighImpact,
	})
	if err != nil {
		return h.fail(c, "failed to build swap plan", err)
	}
	return c.JSON(http.StatusOK, PlanResponse{
		Plan:     plan,
		Estimate: h.toEstimateResponse(plan.Estimate, h.outputToken(ctx, body.TokenOut)),
	})
}

// SwapOutcome settles a plan with what the signer reported. A failed or
// rejected signature is still a successful report and answers 200.
func (h *Handlers) SwapOutcome(c echo.Context) error {
	planID := strings.TrimSpace(c.Param("plan"))
	var body OutcomeRequest
	if err := c.Bind(&body); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	var signErr error
	if msg := strings.TrimSpace(body.Error); msg != "" {
		signErr = errors.New(msg)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 90*time.Second)
	defer cancel()

	res, err := h.Engine.ReportOutcome(ctx, planID, body.Outcomes, signErr)
	if res == nil {
		return h.fail(c, "failed to settle plan", err)
	}
	if err != nil && h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{
			"plan":  planID,
			"state": res.State,
		}).WithError(err).Info("plan settled unsuccessfully")
	}
	return c.JSON(http.StatusOK, OutcomeResponse{
		PlanID:   res.PlanID,
		State:    string(res.State),
		TxHashes: res.TxHashes,
		Error:    res.Error,
	})
}

// SwapStatus returns the lifecycle of a tracked plan
func (h *Handlers) SwapStatus(c echo.Context) error {
	planID := strings.TrimSpace(c.Param("plan"))
	attempt, ok := h.Engine.Attempt(planID)
	if !ok {
		return h.err(c, http.StatusNotFound, "plan not found", nil)
	}

	history := attempt.History()
	states := make([]string, len(history))
	for i, s := range history {
		states[i] = string(s)
	}
	resp := AttemptResponse{
		PlanID:    attempt.ID(),
		State:     string(attempt.State()),
		History:   states,
		UpdatedAt: attempt.UpdatedAt(),
	}
	if err := attempt.Err(); err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// AddLiquidity builds a plan depositing both tokens of a pool in ratio
func (h *Handlers) AddLiquidity(c echo.Context) error {
	var body AddLiquidityRequest
	if err := c.Bind(&body); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	amt, err := amount.Parse(body.Amount)
	if err != nil {
		return h.fail(c, "invalid amount", err)
	}
	slippage, err := parseSlippage(body.SlippagePercent, h.Engine.DefaultSlippage())
	if err != nil {
		return h.fail(c, "invalid slippage", ref.ErrInvalidSlippage)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	plan, err := h.Engine.PrepareAddLiquidity(ctx, swapengine.AddLiquidityRequest{
		AccountID:       body.AccountID,
		PoolID:          body.PoolID,
		Token:           body.Token,
		Amount:          amt,
		SlippagePercent: slippage,
	})
	if err != nil {
		return h.fail(c, "failed to build add-liquidity plan", err)
	}
	return c.JSON(http.StatusOK, PlanResponse{Plan: plan})
}

// RemoveLiquidity builds a plan burning LP shares and withdrawing both tokens
func (h *Handlers) RemoveLiquidity(c echo.Context) error {
	var body RemoveLiquidityRequest
	if err := c.Bind(&body); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	shares, err := amount.Parse(body.Shares)
	if err != nil {
		return h.fail(c, "invalid shares", ref.ErrInvalidShares)
	}
	slippage, err := parseSlippage(body.SlippagePercent, h.Engine.DefaultSlippage())
	if err != nil {
		return h.fail(c, "invalid slippage", ref.ErrInvalidSlippage)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	plan, err := h.Engine.PrepareRemoveLiquidity(ctx, swapengine.RemoveLiquidityRequest{
		AccountID:       body.AccountID,
		PoolID:          body.PoolID,
		Shares:          shares,
		SlippagePercent: slippage,
	})
	if err != nil {
		return h.fail(c, "failed to build remove-liquidity plan", err)
	}
	return c.JSON(http.StatusOK, PlanResponse{Plan: plan})
}

// LiquidityPreview shows the paired amount and shares minted for depositing
// amount of token into a pool.
func (h *Handlers) LiquidityPreview(c echo.Context) error {
	poolID := c.QueryParam("pool_id")
	token := strings.TrimSpace(c.QueryParam("token"))
	if token == constants.NativeTokenID {
		token = h.Engine.WrapNearContract()
	}
	amt, err := amount.Parse(c.QueryParam("amount"))
	if err != nil {
		return h.fail(c, "invalid amount", err)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	p, err := h.Engine.Pool(ctx, poolID)
	if err != nil {
		return h.fail(c, "failed to get pool", err)
	}
	pool, ok := p.(*models.SimplePool)
	if !ok {
		return h.fail(c, "pool cannot take liquidity", ref.ErrUnsupportedPool)
	}

	paired, err := ref.OptimalPairedAmount(amt, token, pool)
	if err != nil {
		return h.fail(c, "invalid deposit", err)
	}
	amounts := make([]*big.Int, len(pool.Tokens))
	for i, id := range pool.Tokens {
		if id == token {
			amounts[i] = amt
		} else {
			amounts[i] = paired
		}
	}
	shares, err := ref.SharesForDeposit(amounts, pool)
	if err != nil {
		return h.fail(c, "invalid deposit", err)
	}

	resp := LiquidityPreviewResponse{
		PoolID:       pool.PoolID(),
		Tokens:       pool.Tokens,
		Amounts:      make([]string, len(amounts)),
		SharesMinted: shares.String(),
	}
	for i, a := range amounts {
		resp.Amounts[i] = a.String()
	}
	return c.JSON(http.StatusOK, resp)
}
