package swapengine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/amount"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// TokenResolver resolves token ids and symbols to metadata
type TokenResolver interface {
	Resolve(ctx context.Context, tokenID string) (models.Token, error)
	FindBySymbol(symbol string) (models.Token, bool)
}

// DecisionEngine turns user intents stated in display units into contract
// unit requests.
type DecisionEngine struct {
	tokens          TokenResolver
	defaultSlippage decimal.Decimal
	defaultPoolID   string
}

func NewDecisionEngine(tokens TokenResolver, defaultSlippage decimal.Decimal, defaultPoolID string) *DecisionEngine {
	return &DecisionEngine{
		tokens:          tokens,
		defaultSlippage: defaultSlippage,
		defaultPoolID:   defaultPoolID,
	}
}

func (de *DecisionEngine) ValidateIntent(intent *SwapIntent) error {
	if intent == nil {
		return fmt.Errorf("intent is nil")
	}
	if strings.TrimSpace(intent.InputToken) == "" || strings.TrimSpace(intent.OutputToken) == "" {
		return fmt.Errorf("input/output token required")
	}
	if strings.EqualFold(intent.InputToken, intent.OutputToken) {
		return ErrInvalidPair
	}
	if strings.TrimSpace(intent.Amount) == "" {
		return fmt.Errorf("amount required")
	}
	return nil
}

func (de *DecisionEngine) EnrichIntent(intent *SwapIntent) {
	if intent.RequestedAt.IsZero() {
		intent.RequestedAt = time.Now()
	}
	if intent.SlippagePercent == nil {
		v := de.defaultSlippage
		intent.SlippagePercent = &v
	}
	if intent.PoolID == "" {
		intent.PoolID = de.defaultPoolID
	}
}

// ParsedIntent is a validated intent with tokens resolved
type ParsedIntent struct {
	Quote    QuoteRequest
	TokenIn  models.Token
	TokenOut models.Token
	Intent   *SwapIntent
	ParsedAt time.Time
}

// ParseIntent validates, fills defaults and converts the display amount using
// the input token's decimals.
func (de *DecisionEngine) ParseIntent(ctx context.Context, intent *SwapIntent) (*ParsedIntent, error) {
	if err := de.ValidateIntent(intent); err != nil {
		return nil, err
	}
	de.EnrichIntent(intent)

	in, err := de.lookup(ctx, intent.InputToken)
	if err != nil {
		return nil, fmt.Errorf("input token: %w", err)
	}
	out, err := de.lookup(ctx, intent.OutputToken)
	if err != nil {
		return nil, fmt.Errorf("output token: %w", err)
	}
	if contractOf(in.ID) == contractOf(out.ID) {
		return nil, ErrInvalidPair
	}

	units, err := amount.ToContractUnits(intent.Amount, in.Decimals)
	if err != nil {
		return nil, err
	}
	amountIn, ok := new(big.Int).SetString(units, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", amount.ErrInvalidAmount, intent.Amount)
	}

	return &ParsedIntent{
		Quote: QuoteRequest{
			PoolID:          intent.PoolID,
			TokenIn:         in.ID,
			TokenOut:        out.ID,
			AmountIn:        amountIn,
			SlippagePercent: *intent.SlippagePercent,
		},
		TokenIn:  in,
		TokenOut: out,
		Intent:   intent,
		ParsedAt: time.Now(),
	}, nil
}

// lookup accepts an account id or a symbol
func (de *DecisionEngine) lookup(ctx context.Context, ref string) (models.Token, error) {
	if strings.Contains(ref, ".") || ref == constants.NativeTokenID {
		return de.tokens.Resolve(ctx, ref)
	}
	if tok, ok := de.tokens.FindBySymbol(ref); ok {
		return tok, nil
	}
	tok, err := de.tokens.Resolve(ctx, ref)
	if err != nil {
		return models.Token{}, errors.Join(fmt.Errorf("unknown token %q", ref), err)
	}
	return tok, nil
}

// contractOf maps the native token to the wrapper contract that represents it
// inside the exchange.
func contractOf(tokenID string) string {
	if tokenID == constants.NativeTokenID {
		return constants.DefaultWrapNearContract
	}
	return tokenID
}
