package ref

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/rpc"
)

// fakeView answers view calls from a table keyed by "contract.method".
type fakeView struct {
	responses map[string]interface{}
	errs      map[string]error
	calls     int32
}

func (f *fakeView) ViewFunction(ctx context.Context, contractID, method string, args interface{}, out interface{}) error {
	atomic.AddInt32(&f.calls, 1)
	key := contractID + "." + method
	if err, ok := f.errs[key]; ok {
		return err
	}
	resp, ok := f.responses[key]
	if !ok {
		return &rpc.ViewError{Contract: contractID, Method: method, Message: "MethodNotFound"}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var chainPool79 = map[string]interface{}{
	"pool_kind":           "SIMPLE_POOL",
	"token_account_ids":   []string{"wrap.near", "token.near"},
	"amounts":             []string{"1000000000000000000000000000000", "500000000000000000000000"},
	"total_fee":           30,
	"shares_total_supply": "1000000000000000000000000",
	"amp":                 0,
}

func TestAccessor_PrefersIndexer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-pool", r.URL.Path)
		assert.Equal(t, "79", r.URL.Query().Get("pool_id"))
		_, _ = w.Write([]byte(`{"id":79,"pool_kind":"SIMPLE_POOL","token_account_ids":["wrap.near","token.near"],
			"amounts":["2000000000000000000000000000000","1000000000000000000000000"],"total_fee":30,
			"shares_total_supply":"2000000000000000000000000","update_time":0}`))
	}))
	defer srv.Close()

	view := &fakeView{responses: map[string]interface{}{"v2.ref-finance.near.get_pool": chainPool79}}
	acc := NewAccessor(NewIndexerClient(srv.URL, time.Second), NewChainClient(view, "", ""), AccessorConfig{Logger: quietLogger()})

	pool, err := acc.GetSimplePool(context.Background(), "79")
	require.NoError(t, err)
	assert.Equal(t, models.PoolSourceIndexer, pool.Meta.Source)
	assert.Equal(t, "2000000000000000000000000000000", pool.Reserves[0].String())
	assert.Equal(t, int32(0), atomic.LoadInt32(&view.calls))
}

func TestAccessor_FallsBackToChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	view := &fakeView{responses: map[string]interface{}{"v2.ref-finance.near.get_pool": chainPool79}}
	acc := NewAccessor(NewIndexerClient(srv.URL, time.Second), NewChainClient(view, "", ""), AccessorConfig{Logger: quietLogger()})

	pool, err := acc.GetSimplePool(context.Background(), "79")
	require.NoError(t, err)
	assert.Equal(t, models.PoolSourceRPC, pool.Meta.Source)
	assert.Equal(t, uint64(79), pool.ID)
	assert.Equal(t, uint32(30), pool.FeeBps)
	assert.NotEmpty(t, pool.Meta.ID)
}

func TestAccessor_StaleIndexerSnapshotIgnored(t *testing.T) {
	stale := time.Now().Add(-10 * time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "79", "pool_kind": "SIMPLE_POOL",
			"token_account_ids": []string{"wrap.near", "token.near"},
			"amounts":           []string{"1", "1"},
			"total_fee":         30, "shares_total_supply": "1",
			"update_time": stale,
		})
	}))
	defer srv.Close()

	view := &fakeView{responses: map[string]interface{}{"v2.ref-finance.near.get_pool": chainPool79}}
	acc := NewAccessor(NewIndexerClient(srv.URL, time.Second), NewChainClient(view, "", ""),
		AccessorConfig{IndexerMaxAge: time.Minute, Logger: quietLogger()})

	pool, err := acc.GetSimplePool(context.Background(), "79")
	require.NoError(t, err)
	assert.Equal(t, models.PoolSourceRPC, pool.Meta.Source)
}

func TestAccessor_SnapshotsAreDistinct(t *testing.T) {
	view := &fakeView{responses: map[string]interface{}{"v2.ref-finance.near.get_pool": chainPool79}}
	acc := NewAccessor(nil, NewChainClient(view, "", ""), AccessorConfig{Logger: quietLogger()})

	a, err := acc.GetPool(context.Background(), "79")
	require.NoError(t, err)
	b, err := acc.GetPool(context.Background(), "79")
	require.NoError(t, err)
	assert.NotEqual(t, a.Snapshot().ID, b.Snapshot().ID)
}

func TestAccessor_Unavailable(t *testing.T) {
	view := &fakeView{errs: map[string]error{"v2.ref-finance.near.get_pool": errors.New("boom")}}
	acc := NewAccessor(nil, NewChainClient(view, "", ""), AccessorConfig{Logger: quietLogger()})

	_, err := acc.GetPool(context.Background(), "79")
	assert.ErrorIs(t, err, ErrPoolUnavailable)

	_, err = acc.GetPool(context.Background(), "not-a-pool")
	assert.ErrorIs(t, err, ErrPoolUnavailable)

	_, err = acc.GetPool(context.Background(), " ")
	assert.ErrorIs(t, err, ErrPoolUnavailable)
}

func TestAccessor_ZeroReservesUnavailable(t *testing.T) {
	zero := map[string]interface{}{
		"pool_kind":           "SIMPLE_POOL",
		"token_account_ids":   []string{"wrap.near", "token.near"},
		"amounts":             []string{"0", "0"},
		"total_fee":           30,
		"shares_total_supply": "0",
	}
	view := &fakeView{responses: map[string]interface{}{"v2.ref-finance.near.get_pool": zero}}
	acc := NewAccessor(nil, NewChainClient(view, "", ""), AccessorConfig{Logger: quietLogger()})

	_, err := acc.GetPool(context.Background(), "79")
	assert.ErrorIs(t, err, ErrPoolUnavailable)
}

func TestAccessor_ConcentratedPool(t *testing.T) {
	id := "usdt.tether-token.near|wrap.near|2000"
	view := &fakeView{responses: map[string]interface{}{
		"dclv2.ref-labs.near.get_pool": map[string]interface{}{
			"pool_id":       id,
			"token_x":       "usdt.tether-token.near",
			"token_y":       "wrap.near",
			"fee":           2000,
			"current_point": -123400,
			"liquidity":     "123456789",
			"total_x":       "1000",
			"total_y":       "2000",
		},
	}}
	acc := NewAccessor(nil, NewChainClient(view, "", ""), AccessorConfig{Logger: quietLogger()})

	pool, err := acc.GetPool(context.Background(), id)
	require.NoError(t, err)
	dcl, ok := pool.(*models.ConcentratedPool)
	require.True(t, ok)
	assert.Equal(t, uint32(20), dcl.FeeBps)
	assert.Equal(t, int32(-123400), dcl.CurrentPoint)

	_, err = acc.GetSimplePool(context.Background(), id)
	assert.ErrorIs(t, err, ErrUnsupportedPool)
}

func TestAccessor_StableSwapUnsupported(t *testing.T) {
	stable := map[string]interface{}{
		"pool_kind":           "STABLE_SWAP",
		"token_account_ids":   []string{"a.near", "b.near"},
		"amounts":             []string{"1", "1"},
		"total_fee":           5,
		"shares_total_supply": "2",
	}
	view := &fakeView{responses: map[string]interface{}{"v2.ref-finance.near.get_pool": stable}}
	acc := NewAccessor(nil, NewChainClient(view, "", ""), AccessorConfig{Logger: quietLogger()})

	_, err := acc.GetPool(context.Background(), "1910")
	assert.ErrorIs(t, err, ErrUnsupportedPool)
}
