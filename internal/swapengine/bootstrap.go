package swapengine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/config"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/price"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/ref"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/rpc"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/wallet"
)

// Runtime holds the chain-facing collaborators built from configuration
type Runtime struct {
	RPC    *rpc.Client
	Chain  *ref.ChainClient
	Pools  *ref.Accessor
	Tokens *ref.TokenRegistry
	Prices *price.Service
	Status *wallet.StatusChecker
}

// NewRuntime dials nothing; clients connect lazily on first use
func NewRuntime(cfg *config.Config, logger *logrus.Logger) (*Runtime, error) {
	rpcClient := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		RateLimit:    cfg.RPCRateLimit,
		Logger:       logger,
	})
	chain := ref.NewChainClient(rpcClient, cfg.ExchangeContract, cfg.DCLContract)

	var indexer *ref.IndexerClient
	if cfg.IndexerURL != "" {
		indexer = ref.NewIndexerClient(cfg.IndexerURL, cfg.IndexerTimeout)
	}
	pools := ref.NewAccessor(indexer, chain, ref.AccessorConfig{
		IndexerTimeout: cfg.IndexerTimeout,
		IndexerMaxAge:  cfg.IndexerMaxAge,
		Logger:         logger,
	})

	tokens, err := ref.NewTokenRegistry(cfg.TokenRegistryPath, chain)
	if err != nil {
		return nil, fmt.Errorf("token registry: %w", err)
	}

	var lister price.PriceLister
	if cfg.PriceIndexerURL != "" {
		lister = price.NewClient(cfg.PriceIndexerURL, cfg.IndexerTimeout)
	}

	return &Runtime{
		RPC:    rpcClient,
		Chain:  chain,
		Pools:  pools,
		Tokens: tokens,
		Prices: price.NewService(lister, cfg.IndexerTimeout, logger),
		Status: wallet.NewStatusChecker(rpcClient),
	}, nil
}

// EngineConfigFrom maps process configuration onto the engine's
func EngineConfigFrom(cfg *config.Config) EngineConfig {
	ec := DefaultEngineConfig()
	ec.ExchangeContract = cfg.ExchangeContract
	ec.WrapNearContract = cfg.WrapNearContract
	ec.DefaultPoolID = cfg.DefaultPoolID
	ec.DefaultSlippagePercent = cfg.DefaultSlippagePercent
	ec.MaxQuoteAge = cfg.MaxQuoteAge
	ec.ConfirmTimeout = cfg.ConfirmTimeout
	ec.Costs = ref.CallCosts{
		StorageDepositGas: cfg.StorageDepositGas,
		NearDepositGas:    cfg.NearDepositGas,
		FtTransferCallGas: cfg.FtTransferCallGas,
		StorageDepositFT:  cfg.StorageDepositFT,
	}
	ec.RiskConfig.MaxPriceImpactPercent = cfg.MaxPriceImpactPercent
	ec.RiskConfig.RequireHighImpactAck = cfg.RequireHighImpactAck
	ec.RiskConfig.AllowedTokens = cfg.AllowedTokens
	ec.RiskConfig.DailyPlanLimit = cfg.DailyPlanLimit
	return ec
}

// NewEngine builds an engine on the runtime's pools, tokens and storage
// checks. deps supplies the optional collaborators; confirmation through the
// RPC status endpoint is used unless deps names another Confirmer.
func (rt *Runtime) NewEngine(cfg *config.Config, deps EngineDeps) (*Engine, error) {
	deps.Pools = rt.Pools
	deps.Tokens = rt.Tokens
	deps.Storage = rt.Chain
	if deps.Confirmer == nil {
		deps.Confirmer = rt.Status
	}
	return NewEngine(EngineConfigFrom(cfg), deps)
}
