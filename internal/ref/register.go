package ref

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// MetadataFetcher resolves token metadata the registry does not know yet.
// *ChainClient satisfies it.
type MetadataFetcher interface {
	FtMetadata(ctx context.Context, tokenID string) (*FtMetadata, error)
}

// TokenConfig represents a token entry in the JSON registry file
type TokenConfig struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	Icon     string `json:"icon,omitempty"`
}

// DefaultTokens are always present in a new registry
var DefaultTokens = []models.Token{
	{ID: constants.NativeTokenID, Symbol: "NEAR", Name: "NEAR", Decimals: 24},
	{ID: constants.DefaultWrapNearContract, Symbol: "wNEAR", Name: "Wrapped NEAR", Decimals: 24},
	{ID: "token.v2.ref-finance.near", Symbol: "REF", Name: "Ref Finance Token", Decimals: 18},
	{ID: "usdt.tether-token.near", Symbol: "USDt", Name: "Tether USD", Decimals: 6},
	{ID: "17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	{ID: "dac17f958d2ee523a2206206994597c13d831ec7.factory.bridge.near", Symbol: "USDT.e", Name: "Tether USD (bridged)", Decimals: 6},
	{ID: "aurora", Symbol: "ETH", Name: "Ether", Decimals: 18},
	{ID: "meta-pool.near", Symbol: "STNEAR", Name: "Staked NEAR", Decimals: 24},
}

// TokenRegistry maps token account ids to their metadata. Unknown ids are
// resolved through ft_metadata once and then cached for the process lifetime.
type TokenRegistry struct {
	mu      sync.RWMutex
	tokens  map[string]models.Token
	fetcher MetadataFetcher
}

// NewTokenRegistry builds a registry from the defaults plus an optional JSON
// file. fetcher may be nil, in which case unknown tokens are an error.
func NewTokenRegistry(configPath string, fetcher MetadataFetcher) (*TokenRegistry, error) {
	r := &TokenRegistry{
		tokens:  make(map[string]models.Token, len(DefaultTokens)),
		fetcher: fetcher,
	}
	for _, t := range DefaultTokens {
		r.tokens[t.ID] = t
	}

	if configPath == "" {
		return r, nil
	}
	tokens, err := LoadTokensFromJSON(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	for _, t := range tokens {
		r.tokens[t.ID] = t
	}
	return r, nil
}

// LoadTokensFromJSON reads and validates token entries
func LoadTokensFromJSON(path string) ([]models.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var configs []TokenConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	tokens := make([]models.Token, 0, len(configs))
	for i, cfg := range configs {
		id := strings.TrimSpace(cfg.ID)
		if id == "" {
			return nil, fmt.Errorf("token %d: id is required", i)
		}
		if cfg.Decimals < 0 || cfg.Decimals > 38 {
			return nil, fmt.Errorf("token %d (%s): decimals %d out of range", i, id, cfg.Decimals)
		}
		tokens = append(tokens, models.Token{
			ID:       id,
			Symbol:   cfg.Symbol,
			Name:     cfg.Name,
			Decimals: cfg.Decimals,
			Icon:     cfg.Icon,
		})
	}
	return tokens, nil
}

// Lookup returns a cached token without any network access
func (r *TokenRegistry) Lookup(tokenID string) (models.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[tokenID]
	return t, ok
}

// Resolve returns metadata for tokenID, fetching it from the chain on first use
func (r *TokenRegistry) Resolve(ctx context.Context, tokenID string) (models.Token, error) {
	if t, ok := r.Lookup(tokenID); ok {
		return t, nil
	}
	if r.fetcher == nil {
		return models.Token{}, fmt.Errorf("%s: %w", tokenID, ErrTokenUnknown)
	}

	meta, err := r.fetcher.FtMetadata(ctx, tokenID)
	if err != nil {
		return models.Token{}, err
	}
	t := models.Token{
		ID:       tokenID,
		Symbol:   meta.Symbol,
		Name:     meta.Name,
		Decimals: meta.Decimals,
		Icon:     meta.Icon,
	}

	r.mu.Lock()
	if existing, ok := r.tokens[tokenID]; ok {
		t = existing
	} else {
		r.tokens[tokenID] = t
	}
	r.mu.Unlock()
	return t, nil
}

// FindBySymbol searches for a token by symbol, case-insensitively
func (r *TokenRegistry) FindBySymbol(symbol string) (models.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return models.Token{}, false
}

// All returns every known token
func (r *TokenRegistry) All() []models.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	return out
}

// Count returns the number of known tokens
func (r *TokenRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
