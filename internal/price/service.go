package price

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/amount"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// Source tells where a price snapshot came from
type Source string

const (
	SourceIndexer  Source = "indexer"
	SourceReserves Source = "reserves"
	SourceNone     Source = "none"
)

// StableTokens are valued at one USD when prices are derived from reserves
var StableTokens = []string{
	"usdt.tether-token.near",
	"17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1",
	"dac17f958d2ee523a2206206994597c13d831ec7.factory.bridge.near",
	"a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.factory.bridge.near",
	"6b175474e89094c44da98b954eedeac495271d0f.factory.bridge.near",
}

// IsStable reports whether tokenID is one of StableTokens
func IsStable(tokenID string) bool {
	for _, id := range StableTokens {
		if id == tokenID {
			return true
		}
	}
	return false
}

// Snapshot is a latest-wins view of token prices
type Snapshot struct {
	Prices    map[string]decimal.Decimal `json:"prices"`
	Source    Source                     `json:"source"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Get returns the price of tokenID, zero when unknown
func (s *Snapshot) Get(tokenID string) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	if p, ok := s.Prices[tokenID]; ok {
		return p
	}
	return decimal.Zero
}

// PriceLister is satisfied by *Client
type PriceLister interface {
	ListPrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Service resolves token prices with a bounded wait, falling back to pool
// reserves and finally to zero values.
type Service struct {
	client  PriceLister
	timeout time.Duration
	logger  *logrus.Logger
}

func NewService(client PriceLister, timeout time.Duration, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Prices returns a snapshot for the tokens of pool. tokens supplies decimals
// for the reserve fallback and may miss entries, in which case the fallback
// yields zeros. It never returns an error.
func (s *Service) Prices(ctx context.Context, pool *models.SimplePool, tokens map[string]models.Token) *Snapshot {
	if s.client != nil {
		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		prices, err := s.client.ListPrices(fctx)
		cancel()
		if err == nil && len(prices) > 0 {
			return &Snapshot{Prices: prices, Source: SourceIndexer, FetchedAt: time.Now()}
		}
		s.logger.WithError(err).Warn("price indexer unavailable, deriving prices from reserves")
	}

	if derived := FromReserves(pool, tokens); derived != nil {
		return &Snapshot{Prices: derived, Source: SourceReserves, FetchedAt: time.Now()}
	}

	zeros := make(map[string]decimal.Decimal)
	if pool != nil {
		for _, id := range pool.Tokens {
			zeros[id] = decimal.Zero
		}
	}
	return &Snapshot{Prices: zeros, Source: SourceNone, FetchedAt: time.Now()}
}

// FromReserves values the non-stable side of a two-token pool against a
// stable side priced at one USD. It returns nil when no anchor exists.
func FromReserves(pool *models.SimplePool, tokens map[string]models.Token) map[string]decimal.Decimal {
	if pool == nil || len(pool.Tokens) != 2 || len(pool.Reserves) != 2 {
		return nil
	}

	stable := -1
	for i, id := range pool.Tokens {
		if IsStable(id) {
			stable = i
			break
		}
	}
	if stable < 0 {
		return nil
	}
	other := 1 - stable

	stableTok, ok1 := tokens[pool.Tokens[stable]]
	otherTok, ok2 := tokens[pool.Tokens[other]]
	if !ok1 || !ok2 {
		return nil
	}

	stableAmt := amount.ToDecimal(pool.Reserves[stable], stableTok.Decimals)
	otherAmt := amount.ToDecimal(pool.Reserves[other], otherTok.Decimals)
	if otherAmt.Sign() <= 0 {
		return nil
	}

	return map[string]decimal.Decimal{
		pool.Tokens[stable]: decimal.NewFromInt(1),
		pool.Tokens[other]:  stableAmt.Div(otherAmt),
	}
}
