package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	Method string `json:"method"`
	Params struct {
		RequestType string `json:"request_type"`
		AccountID   string `json:"account_id"`
		MethodName  string `json:"method_name"`
		ArgsBase64  string `json:"args_base64"`
	} `json:"params"`
}

func toByteArrayJSON(v interface{}) []int {
	b, _ := json.Marshal(v)
	out := make([]int, len(b))
	for i, c := range b {
		out[i] = int(c)
	}
	return out
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
}

func TestViewFunction_DecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "query", req.Method)
		assert.Equal(t, "call_function", req.Params.RequestType)
		assert.Equal(t, "wrap.near", req.Params.AccountID)
		assert.Equal(t, "storage_balance_of", req.Params.MethodName)

		args, err := base64.StdEncoding.DecodeString(req.Params.ArgsBase64)
		require.NoError(t, err)
		assert.JSONEq(t, `{"account_id":"alice.near"}`, string(args))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      "dontcare",
			"result": map[string]interface{}{
				"result":       toByteArrayJSON(map[string]string{"total": "1250000000000000000000", "available": "0"}),
				"logs":         []string{},
				"block_height": 1,
			},
		})
	}))
	defer srv.Close()

	var out struct {
		Total string `json:"total"`
	}
	err := newTestClient(srv.URL).ViewFunction(context.Background(), "wrap.near", "storage_balance_of",
		map[string]string{"account_id": "alice.near"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "1250000000000000000000", out.Total)
}

func TestViewFunction_ContractError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"dontcare","result":{"error":"wasm execution failed with error: MethodNotFound","logs":[],"block_height":1}}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ViewFunction(context.Background(), "x.near", "nope", nil, nil)
	var viewErr *ViewError
	require.ErrorAs(t, err, &viewErr)
	assert.Equal(t, "nope", viewErr.Method)
}

func TestViewFunction_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"dontcare","error":{"name":"HANDLER_ERROR","cause":{"name":"UNKNOWN_ACCOUNT"},"code":-32000,"message":"Server error"}}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ViewFunction(context.Background(), "ghost.near", "get_pool", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "UNKNOWN_ACCOUNT", rpcErr.Cause.Name)
	assert.Contains(t, err.Error(), "UNKNOWN_ACCOUNT")
}

func TestCall_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"dontcare","result":{"result":[123,125],"logs":[]}}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ViewFunction(context.Background(), "x.near", "m", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCall_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ViewFunction(context.Background(), "x.near", "m", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCall_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).ViewFunction(context.Background(), "x.near", "m", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestByteArray_RejectsOutOfRange(t *testing.T) {
	var b ByteArray
	assert.Error(t, json.Unmarshal([]byte(`[1, 256]`), &b))
	require.NoError(t, json.Unmarshal([]byte(`[104, 105]`), &b))
	assert.Equal(t, "hi", string(b))
}
