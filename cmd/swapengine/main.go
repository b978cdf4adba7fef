package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/amount"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/config"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

func main() {
	loadEnv()

	mode := flag.String("mode", "quote", "quote | plan")
	inTok := flag.String("in", "NEAR", "input token symbol or account id")
	outTok := flag.String("out", "REF", "output token symbol or account id")
	amt := flag.String("amt", "", "amount in display units (e.g. 1.5)")
	slippage := flag.String("slippage", "", "slippage percent (default from config)")
	pool := flag.String("pool", "", "pool id (default from config)")
	account := flag.String("account", "", "signer account id, required for -mode plan")
	ackImpact := flag.Bool("allow-high-impact", false, "accept a price impact above the warning threshold")
	flag.Parse()

	if *amt == "" {
		fmt.Println("missing -amt")
		os.Exit(2)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Println("invalid configuration:", err)
		os.Exit(2)
	}
	logger := cfg.NewLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rt, err := swapengine.NewRuntime(cfg, logger)
	if err != nil {
		fmt.Println("failed to init runtime:", err)
		os.Exit(1)
	}
	engine, err := rt.NewEngine(cfg, swapengine.EngineDeps{Logger: logger})
	if err != nil {
		fmt.Println("failed to init swapengine:", err)
		os.Exit(1)
	}

	intent := &swapengine.SwapIntent{
		InputToken:      *inTok,
		OutputToken:     *outTok,
		Amount:          *amt,
		PoolID:          *pool,
		AccountID:       *account,
		AllowHighImpact: *ackImpact,
		RequestedAt:     time.Now(),
	}
	if *slippage != "" {
		s, err := decimal.NewFromString(*slippage)
		if err != nil {
			fmt.Println("invalid -slippage:", err)
			os.Exit(2)
		}
		intent.SlippagePercent = &s
	}

	parsed, err := engine.ParseIntent(ctx, intent)
	if err != nil {
		fmt.Println("invalid intent:", err)
		os.Exit(1)
	}

	switch *mode {
	case "quote":
		res, err := engine.Quote(ctx, "cli", parsed.Quote)
		if err != nil {
			fmt.Println("quote failed:", err)
			os.Exit(1)
		}
		if res.Estimate == nil {
			fmt.Println("no estimate for a zero amount")
			return
		}
		est := res.Estimate
		fmt.Printf("pool=%s amount_in=%s %s amount_out=%s %s min_received=%s price_impact=%s%% fee_bps=%d high_impact=%v\n",
			est.Route[0].PoolID,
			amount.Format(est.AmountIn.String(), res.TokenIn.Decimals, 6), res.TokenIn.Symbol,
			amount.Format(est.AmountOut.String(), res.TokenOut.Decimals, 6), res.TokenOut.Symbol,
			amount.Format(est.MinReceived.String(), res.TokenOut.Decimals, 6),
			est.PriceImpact.StringFixed(4), est.FeeBps, est.HighImpact)
	case "plan":
		plan, err := engine.PrepareSwap(ctx, swapengine.SwapRequest{
			AccountID:       *account,
			PoolID:          parsed.Quote.PoolID,
			TokenIn:         parsed.Quote.TokenIn,
			TokenOut:        parsed.Quote.TokenOut,
			AmountIn:        parsed.Quote.AmountIn,
			SlippagePercent: parsed.Quote.SlippagePercent,
			AllowHighImpact: *ackImpact,
		})
		if err != nil {
			fmt.Println("plan failed:", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(plan); err != nil {
			fmt.Println("encode plan:", err)
			os.Exit(1)
		}
	default:
		fmt.Println("unknown -mode:", *mode)
		os.Exit(2)
	}
}
