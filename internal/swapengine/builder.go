package swapengine

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/ref"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/wallet"
)

// BuilderConfig names the contracts plans are addressed to
type BuilderConfig struct {
	ExchangeContract string
	WrapNearContract string
	MaxQuoteAge      time.Duration
	Costs            ref.CallCosts
}

// Builder turns estimates and liquidity requests into transaction plans
type Builder struct {
	cfg      BuilderConfig
	resolver *RegistrationResolver
	logger   *logrus.Logger
	now      func() time.Time
}

func NewBuilder(cfg BuilderConfig, resolver *RegistrationResolver, logger *logrus.Logger) *Builder {
	if cfg.ExchangeContract == "" {
		cfg.ExchangeContract = constants.DefaultExchangeContract
	}
	if cfg.WrapNearContract == "" {
		cfg.WrapNearContract = constants.DefaultWrapNearContract
	}
	if cfg.MaxQuoteAge <= 0 {
		cfg.MaxQuoteAge = constants.DefaultMaxQuoteAge
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Builder{cfg: cfg, resolver: resolver, logger: logger, now: time.Now}
}

// contract maps a token id to the contract that holds it
func (b *Builder) contract(tokenID string) string {
	if tokenID == constants.NativeTokenID {
		return b.cfg.WrapNearContract
	}
	return tokenID
}

// BuildSwapPlan produces the ordered transactions for one swap. An output
// token registration, when needed, is its own transaction ahead of the swap;
// input side registration and wrapping ride inside the swap transaction.
func (b *Builder) BuildSwapPlan(ctx context.Context, req SwapPlanRequest) (*models.TransactionPlan, error) {
	est := req.Estimate
	if err := b.validateSwap(req); err != nil {
		return nil, err
	}

	minReceived, err := ref.ApplySlippage(est.AmountOut, req.SlippagePercent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if minReceived.Sign() <= 0 {
		return nil, fmt.Errorf("%w: minimum received rounds to zero", ErrInvalidPlan)
	}

	inContract := b.contract(req.TokenIn)
	outContract := b.contract(req.TokenOut)
	if inContract == outContract {
		return nil, ErrInvalidPair
	}
	poolID, err := strconv.ParseUint(est.Route[0].PoolID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: pool id %q", ErrInvalidPlan, est.Route[0].PoolID)
	}

	var inReg, outReg *ResolvedRegistration
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := b.resolver.Resolve(gctx, inContract, req.AccountID)
		inReg = r
		return err
	})
	g.Go(func() error {
		r, err := b.resolver.Resolve(gctx, outContract, req.AccountID)
		outReg = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var txs []models.Transaction
	if !outReg.Registered {
		txs = append(txs, models.Transaction{ReceiverID: outContract, FunctionCalls: outReg.PreCalls})
	}

	calls := append([]models.FunctionCall{}, inReg.PreCalls...)
	if req.TokenIn == constants.NativeTokenID {
		wrap, err := ref.BuildNearDepositCall(req.AmountIn, b.cfg.Costs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		calls = append(calls, wrap)
	}
	swap, err := ref.BuildSwapCall(b.cfg.ExchangeContract, []ref.SwapAction{{
		PoolID:       poolID,
		TokenIn:      inContract,
		TokenOut:     outContract,
		AmountIn:     req.AmountIn.String(),
		MinAmountOut: minReceived.String(),
	}}, req.AmountIn, b.cfg.Costs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	calls = append(calls, swap)
	txs = append(txs, models.Transaction{ReceiverID: inContract, FunctionCalls: calls})

	planned := *est
	planned.SlippagePercent = req.SlippagePercent
	planned.MinReceived = minReceived

	return &models.TransactionPlan{
		ID:           uuid.NewString(),
		Kind:         models.PlanKindSwap,
		AccountID:    req.AccountID,
		Transactions: txs,
		Estimate:     &planned,
		CreatedAt:    b.now(),
	}, nil
}

func (b *Builder) validateSwap(req SwapPlanRequest) error {
	if err := wallet.ValidateAccountID(req.AccountID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidPlan)
	}
	est := req.Estimate
	if est == nil || est.AmountOut == nil || len(est.Route) == 0 {
		return fmt.Errorf("%w: no estimate", ErrInvalidPlan)
	}
	if est.TokenIn != b.contract(req.TokenIn) || est.TokenOut != b.contract(req.TokenOut) || est.AmountIn.Cmp(req.AmountIn) != 0 {
		return fmt.Errorf("%w: estimate does not match request", ErrInvalidPlan)
	}
	if b.now().Sub(est.QuotedAt) > b.cfg.MaxQuoteAge {
		return ErrStaleEstimate
	}
	return nil
}

// BuildAddLiquidityPlan deposits both pool tokens into the exchange and adds
// them to the pool. The paired amount keeps the pool ratio.
func (b *Builder) BuildAddLiquidityPlan(ctx context.Context, req AddLiquidityRequest, pool *models.SimplePool) (*models.TransactionPlan, error) {
	if err := wallet.ValidateAccountID(req.AccountID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := ref.ValidateSlippage(req.SlippagePercent); err != nil {
		return nil, err
	}
	token := b.contract(req.Token)
	paired, err := ref.OptimalPairedAmount(req.Amount, token, pool)
	if err != nil {
		return nil, err
	}
	if paired.Sign() <= 0 {
		return nil, fmt.Errorf("%w: paired amount rounds to zero", ErrInvalidPlan)
	}

	amounts := make([]*big.Int, len(pool.Tokens))
	for i, t := range pool.Tokens {
		if t == token {
			amounts[i] = new(big.Int).Set(req.Amount)
		} else {
			amounts[i] = paired
		}
	}
	minAmounts := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		if minAmounts[i], err = ref.ApplySlippage(a, req.SlippagePercent); err != nil {
			return nil, err
		}
	}

	contracts := append([]string{b.cfg.ExchangeContract}, pool.Tokens...)
	regs, err := b.resolveAll(ctx, req.AccountID, contracts)
	if err != nil {
		return nil, err
	}

	var txs []models.Transaction
	if !regs[0].Registered {
		call, err := ref.BuildExchangeStorageDepositCall(req.AccountID)
		if err != nil {
			return nil, err
		}
		txs = append(txs, models.Transaction{ReceiverID: b.cfg.ExchangeContract, FunctionCalls: []models.FunctionCall{call}})
	}
	for i, t := range pool.Tokens {
		var calls []models.FunctionCall
		if req.Token == constants.NativeTokenID && t == b.cfg.WrapNearContract {
			calls = append(calls, regs[i+1].PreCalls...)
			wrap, err := ref.BuildNearDepositCall(amounts[i], b.cfg.Costs)
			if err != nil {
				return nil, err
			}
			calls = append(calls, wrap)
		}
		deposit, err := ref.BuildDepositCall(b.cfg.ExchangeContract, amounts[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		calls = append(calls, deposit)
		txs = append(txs, models.Transaction{ReceiverID: t, FunctionCalls: calls})
	}
	add, err := ref.BuildAddLiquidityCall(pool.ID, amounts, minAmounts)
	if err != nil {
		return nil, err
	}
	txs = append(txs, models.Transaction{ReceiverID: b.cfg.ExchangeContract, FunctionCalls: []models.FunctionCall{add}})

	return &models.TransactionPlan{
		ID:           uuid.NewString(),
		Kind:         models.PlanKindAddLiquidity,
		AccountID:    req.AccountID,
		Transactions: txs,
		CreatedAt:    b.now(),
	}, nil
}

// BuildRemoveLiquidityPlan burns shares and withdraws the slippage-protected
// minimum of each token back to the account.
func (b *Builder) BuildRemoveLiquidityPlan(ctx context.Context, req RemoveLiquidityRequest, pool *models.SimplePool) (*models.TransactionPlan, error) {
	if err := wallet.ValidateAccountID(req.AccountID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := ref.ValidateSlippage(req.SlippagePercent); err != nil {
		return nil, err
	}
	a, c, err := ref.WithdrawAmounts(req.Shares, pool)
	if err != nil {
		return nil, err
	}
	minA, err := ref.ApplySlippage(a, req.SlippagePercent)
	if err != nil {
		return nil, err
	}
	minC, err := ref.ApplySlippage(c, req.SlippagePercent)
	if err != nil {
		return nil, err
	}
	mins := []*big.Int{minA, minC}

	regs, err := b.resolveAll(ctx, req.AccountID, pool.Tokens[:2])
	if err != nil {
		return nil, err
	}

	var txs []models.Transaction
	for _, r := range regs {
		if !r.Registered {
			txs = append(txs, models.Transaction{ReceiverID: r.Contract, FunctionCalls: r.PreCalls})
		}
	}

	remove, err := ref.BuildRemoveLiquidityCall(pool.ID, req.Shares, mins)
	if err != nil {
		return nil, err
	}
	calls := []models.FunctionCall{remove}
	for i, t := range pool.Tokens[:2] {
		if mins[i].Sign() <= 0 {
			continue
		}
		w, err := ref.BuildWithdrawCall(t, mins[i])
		if err != nil {
			return nil, err
		}
		calls = append(calls, w)
	}
	txs = append(txs, models.Transaction{ReceiverID: b.cfg.ExchangeContract, FunctionCalls: calls})

	return &models.TransactionPlan{
		ID:           uuid.NewString(),
		Kind:         models.PlanKindRemoveLiquidity,
		AccountID:    req.AccountID,
		Transactions: txs,
		CreatedAt:    b.now(),
	}, nil
}

// resolveAll checks registration on every contract concurrently, preserving order
func (b *Builder) resolveAll(ctx context.Context, accountID string, contracts []string) ([]*ResolvedRegistration, error) {
	out := make([]*ResolvedRegistration, len(contracts))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range contracts {
		g.Go(func() error {
			r, err := b.resolver.Resolve(gctx, c, accountID)
			out[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
