package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/flags"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/metrics"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/price"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/ref"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/stream"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

const (
	refToken = "token.v2.ref-finance.near"
	goodHash = "44PMwfFs4tfN4ujLy5xwpiGxQfa9abP5HFYtub8vgHXn"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// stubPools serves pool 79: 1,000,000 wNEAR against 500,000 REF at 30 bps
type stubPools struct {
	err error
}

func (s *stubPools) GetSimplePool(ctx context.Context, poolID string) (*models.SimplePool, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.SimplePool{
		ID:          79,
		Tokens:      []string{"wrap.near", refToken},
		Reserves:    []*big.Int{bi("1000000000000000000000000000000"), bi("500000000000000000000000")},
		TotalShares: bi("1000000000000000000000000"),
		FeeBps:      30,
		Meta:        models.SnapshotMeta{ID: "79-test", Source: models.PoolSourceRPC, FetchedAt: time.Now()},
	}, nil
}

func (s *stubPools) GetPool(ctx context.Context, poolID string) (models.Pool, error) {
	return s.GetSimplePool(ctx, poolID)
}

type registeredEverywhere struct{}

func (registeredEverywhere) StorageBalanceOf(ctx context.Context, contractID, accountID string) (*ref.StorageBalance, error) {
	return &ref.StorageBalance{Total: "1250000000000000000000", Available: "0"}, nil
}

type memCache struct {
	items []*models.SwapRecord
}

func (m *memCache) AddRecentSwap(ctx context.Context, swap *models.SwapRecord) error {
	m.items = append([]*models.SwapRecord{swap}, m.items...)
	return nil
}

func (m *memCache) GetRecentSwaps(ctx context.Context, limit int64) ([]*models.SwapRecord, error) {
	if int64(len(m.items)) > limit {
		return m.items[:limit], nil
	}
	return m.items, nil
}

func (m *memCache) Ping(ctx context.Context) error { return nil }
func (m *memCache) Close() error                   { return nil }

func (m *memCache) RecordSwap(ctx context.Context, swap *models.SwapRecord) error {
	return m.AddRecentSwap(ctx, swap)
}

// syncMetrics feeds engine events straight into the collector
type syncMetrics struct{ m *metrics.Metrics }

func (p syncMetrics) Publish(e events.Event) error {
	return p.m.Handle(context.Background(), e)
}

type testEnv struct {
	srv       *Server
	pools     *stubPools
	flags     *flags.MemoryStore
	cache     *memCache
	snapshots *stream.SnapshotStore
}

func newEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	tokens, err := ref.NewTokenRegistry("", nil)
	require.NoError(t, err)

	env := &testEnv{
		pools:     &stubPools{},
		flags:     flags.NewMemoryStore(),
		cache:     &memCache{},
		snapshots: stream.NewSnapshotStore(),
	}
	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	require.NoError(t, err)

	engine, err := swapengine.NewEngine(swapengine.DefaultEngineConfig(), swapengine.EngineDeps{
		Pools:     env.pools,
		Tokens:    tokens,
		Storage:   registeredEverywhere{},
		Recorder:  env.cache,
		Publisher: syncMetrics{collector},
		Flags:     env.flags,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	env.srv, err = NewServer(ServerDeps{
		Handlers: &Handlers{
			Engine:        engine,
			Tokens:        tokens,
			Snapshots:     env.snapshots,
			Cache:         env.cache,
			Flags:         env.flags,
			Metrics:       reg,
			DefaultPoolID: "79",
			DevMode:       true,
			Logger:        quietLogger(),
		},
		Config: cfg,
	})
	require.NoError(t, err)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(ServerDeps{Handlers: &Handlers{}})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	rec := env.do(t, http.MethodGet, "/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[HealthResponse](t, rec).OK)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	rec := env.do(t, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[ErrorResponse](t, rec).Code)
}

func TestAPIKeyRequired(t *testing.T) {
	env := newEnv(t, ServerConfig{APIKey: "secret"})
	assert.NotEqual(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/health", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/health", "", "X-API-Key", "secret").Code)
}

func TestQuote_ContractUnits(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	body := `{"pool_id":"79","token_in":"wrap.near","token_out":"` + refToken + `","amount":"10000000000000000000000000","slippage_percent":"0.5"}`

	rec := env.do(t, http.MethodPost, "/v1/quote", body, SessionHeader, "s1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[QuoteResponse](t, rec)
	require.NotNil(t, resp.Estimate)
	assert.Equal(t, "4984950150498495015", resp.Estimate.AmountOut)
	assert.Equal(t, "4960025399746002539", resp.Estimate.MinReceived)
	assert.NotEmpty(t, resp.Estimate.AmountOutDisplay)
	assert.False(t, resp.Estimate.HighImpact)
	assert.Equal(t, uint32(30), resp.Estimate.FeeBps)
}

func TestMetrics_CountsQuotes(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	body := `{"pool_id":"79","token_in":"wrap.near","token_out":"` + refToken + `","amount":"10000000000000000000000000"}`
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/quote", body).Code)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ref_swap_quotes_total{pool="79"} 1`)
}

func TestQuote_DisplayAmountBySymbol(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	body := `{"token_in":"NEAR","token_out":"REF","amount_display":"10"}`

	rec := env.do(t, http.MethodPost, "/v1/quote", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[QuoteResponse](t, rec)
	require.NotNil(t, resp.Estimate)
	assert.Equal(t, "10000000000000000000000000", resp.Estimate.AmountIn)
	assert.Equal(t, "4984950150498495015", resp.Estimate.AmountOut)
	assert.Equal(t, "0.5", resp.Estimate.SlippagePercent)
}

func TestQuote_ZeroAmountHasNoEstimate(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	body := `{"token_in":"wrap.near","token_out":"` + refToken + `","amount":"0"}`

	rec := env.do(t, http.MethodPost, "/v1/quote", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[QuoteResponse](t, rec).Estimate)
}

func TestQuote_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv)
		body  string
		code  int
	}{
		{
			name: "same token",
			body: `{"token_in":"wrap.near","token_out":"wrap.near","amount":"1"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "native and wrapped are the same pool token",
			body: `{"token_in":"near","token_out":"wrap.near","amount":"1"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "bad amount",
			body: `{"token_in":"wrap.near","token_out":"` + refToken + `","amount":"1.5"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "bad slippage",
			body: `{"token_in":"wrap.near","token_out":"` + refToken + `","amount":"1","slippage_percent":"75"}`,
			code: http.StatusBadRequest,
		},
		{
			name: "missing tokens",
			body: `{"amount":"1"}`,
			code: http.StatusBadRequest,
		},
		{
			name:  "pool unavailable",
			setup: func(env *testEnv) { env.pools.err = ref.ErrPoolUnavailable },
			body:  `{"token_in":"wrap.near","token_out":"` + refToken + `","amount":"1"}`,
			code:  http.StatusBadGateway,
		},
		{
			name: "swaps disabled",
			setup: func(env *testEnv) {
				_, _ = env.flags.Upsert(context.Background(), flags.KeySwapsEnabled, false)
			},
			body: `{"token_in":"wrap.near","token_out":"` + refToken + `","amount":"1"}`,
			code: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, ServerConfig{})
			if tt.setup != nil {
				tt.setup(env)
			}
			rec := env.do(t, http.MethodPost, "/v1/quote", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestSwapPlan_OutcomeLifecycle(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	body := `{"account_id":"alice.near","pool_id":"79","token_in":"wrap.near","token_out":"` + refToken + `","amount":"10000000000000000000000000"}`

	rec := env.do(t, http.MethodPost, "/v1/swaps/plan", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := decode[PlanResponse](t, rec)
	require.NotNil(t, plan.Plan)
	require.Len(t, plan.Plan.Transactions, 1)
	assert.Equal(t, "wrap.near", plan.Plan.Transactions[0].ReceiverID)
	require.NotNil(t, plan.Estimate)
	assert.Equal(t, "4960025399746002539", plan.Estimate.MinReceived)

	status := decode[AttemptResponse](t, env.do(t, http.MethodGet, "/v1/swaps/"+plan.Plan.ID, ""))
	assert.Equal(t, "ready", status.State)

	outcome := `{"outcomes":[{"tx_hash":"` + goodHash + `","status":"success"}]}`
	rec = env.do(t, http.MethodPost, "/v1/swaps/"+plan.Plan.ID+"/outcome", outcome)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[OutcomeResponse](t, rec)
	assert.Equal(t, "confirmed", settled.State)
	assert.Equal(t, []string{goodHash}, settled.TxHashes)

	status = decode[AttemptResponse](t, env.do(t, http.MethodGet, "/v1/swaps/"+plan.Plan.ID, ""))
	assert.Equal(t, []string{"idle", "estimating", "ready", "swapping", "confirmed"}, status.History)

	rec = env.do(t, http.MethodPost, "/v1/swaps/"+plan.Plan.ID+"/outcome", outcome)
	assert.Equal(t, http.StatusConflict, rec.Code)

	recent := decode[map[string][]*models.SwapRecord](t, env.do(t, http.MethodGet, "/v1/swaps/recent?limit=5", ""))
	require.Len(t, recent["items"], 1)
	assert.Equal(t, plan.Plan.ID, recent["items"][0].PlanID)
}

func TestSwapOutcome_RejectionAnswers200(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	body := `{"account_id":"alice.near","token_in":"wrap.near","token_out":"` + refToken + `","amount":"10000000000000000000000000"}`
	plan := decode[PlanResponse](t, env.do(t, http.MethodPost, "/v1/swaps/plan", body))
	require.NotNil(t, plan.Plan)

	rec := env.do(t, http.MethodPost, "/v1/swaps/"+plan.Plan.ID+"/outcome", `{"error":"User rejected the request"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[OutcomeResponse](t, rec)
	assert.Equal(t, "cancelled", resp.State)
	assert.NotEmpty(t, resp.Error)
}

func TestSwapOutcome_UnknownPlan(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	rec := env.do(t, http.MethodPost, "/v1/swaps/missing/outcome", `{"outcomes":[]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/swaps/missing", "").Code)
}

func TestSwapPlan_HighImpactNeedsAck(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	body := `{"account_id":"alice.near","token_in":"wrap.near","token_out":"` + refToken + `","amount":"100000000000000000000000000000"}`
	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/v1/swaps/plan", body).Code)

	acked := strings.Replace(body, `"account_id"`, `"allow_high_impact":true,"account_id"`, 1)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/swaps/plan", acked).Code)
}

func TestLiquidityPreview(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	rec := env.do(t, http.MethodGet, "/v1/liquidity/preview?pool_id=79&token=near&amount=1000000000000000000000000000", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[LiquidityPreviewResponse](t, rec)
	assert.Equal(t, []string{"1000000000000000000000000000", "500000000000000000000"}, resp.Amounts)
	assert.Equal(t, "1000000000000000000000", resp.SharesMinted)

	rec = env.do(t, http.MethodGet, "/v1/liquidity/preview?pool_id=79&token=aurora&amount=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiquidityPlans(t *testing.T) {
	env := newEnv(t, ServerConfig{})

	add := `{"account_id":"alice.near","pool_id":"79","token":"wrap.near","amount":"1000000000000000000000000000"}`
	rec := env.do(t, http.MethodPost, "/v1/liquidity/add", add)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.PlanKindAddLiquidity, decode[PlanResponse](t, rec).Plan.Kind)

	remove := `{"account_id":"alice.near","pool_id":"79","shares":"1000000000000000000000"}`
	rec = env.do(t, http.MethodPost, "/v1/liquidity/remove", remove)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.PlanKindRemoveLiquidity, decode[PlanResponse](t, rec).Plan.Kind)

	_, _ = env.flags.Upsert(context.Background(), flags.KeyLiquidityEnabled, false)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, "/v1/liquidity/remove", remove).Code)
}

func TestTokens(t *testing.T) {
	env := newEnv(t, ServerConfig{})

	list := decode[map[string][]models.Token](t, env.do(t, http.MethodGet, "/v1/tokens", ""))
	assert.Len(t, list["items"], len(ref.DefaultTokens))

	tok := decode[models.Token](t, env.do(t, http.MethodGet, "/v1/tokens/REF", ""))
	assert.Equal(t, refToken, tok.ID)
	assert.Equal(t, 18, tok.Decimals)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/tokens/unknown.near", "").Code)
}

func TestPrices_FromSnapshot(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/v1/prices", "").Code)

	env.snapshots.SetPrices(&price.Snapshot{
		Prices:    map[string]decimal.Decimal{"wrap.near": decimal.RequireFromString("3.41")},
		Source:    price.SourceIndexer,
		FetchedAt: time.Now(),
	})

	resp := decode[PriceResponse](t, env.do(t, http.MethodGet, "/v1/prices/wNEAR", ""))
	assert.Equal(t, "wrap.near", resp.Token)
	assert.Equal(t, "3.41", resp.Price)
	assert.Equal(t, "indexer", resp.Source)

	resp = decode[PriceResponse](t, env.do(t, http.MethodGet, "/v1/prices/aurora", ""))
	assert.Equal(t, "0", resp.Price)
}

func TestPools(t *testing.T) {
	env := newEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodGet, "/v1/pools/79", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_fee":30`)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/pools/79?cached=true", "").Code)

	env.snapshots.SetPoolError("80", errors.New("rpc down"))
	status := decode[map[string][]stream.PoolStatus](t, env.do(t, http.MethodGet, "/v1/pools", ""))
	require.Len(t, status["items"], 1)
	assert.Equal(t, "rpc down", status["items"][0].Error)
}

func TestRecentSwaps_InvalidLimit(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/swaps/recent?limit=500", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/swaps/recent?limit=x", "").Code)
}

func TestSwapHistory_NotConfigured(t *testing.T) {
	env := newEnv(t, ServerConfig{})
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/v1/swaps/history/alice.near", "").Code)
}

func TestFlagsCRUD(t *testing.T) {
	env := newEnv(t, ServerConfig{})

	rec := env.do(t, http.MethodPost, "/v1/flags", `{"key":"pool.79.disabled","value":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[flags.Flag](t, env.do(t, http.MethodGet, "/v1/flags/pool.79.disabled", ""))
	assert.True(t, got.Value)

	quote := `{"token_in":"wrap.near","token_out":"` + refToken + `","amount":"1000000000000000000000000"}`
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, "/v1/quote", quote).Code)

	rec = env.do(t, http.MethodPut, "/v1/flags/pool.79.disabled", `{"value":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/quote", quote).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/flags/pool.79.disabled", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/flags/pool.79.disabled", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/flags", `{"key":"bad key!","value":true}`).Code)
}
