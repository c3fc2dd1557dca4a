package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPProviderCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("Expected jsonrpc 2.0, got %s", req.JSONRPC)
		}
		if req.Method != "eth_blockNumber" {
			t.Errorf("Expected eth_blockNumber, got %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second, 0)
	result, err := p.Call(context.Background(), "eth_blockNumber", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(result) != `"0x10"` {
		t.Errorf("Expected \"0x10\", got %s", result)
	}
	if h := p.GetHealth(); !h.Available || h.ErrorRate != 0 {
		t.Errorf("Unexpected health %+v", h)
	}
}

func TestHTTPProviderRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":3,"message":"execution reverted","data":"0x08c379a0"}}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second, 0)
	_, err := p.Call(context.Background(), "eth_estimateGas", []any{map[string]any{}})

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected *RPCError, got %v", err)
	}
	if rpcErr.Code != 3 || !strings.Contains(err.Error(), "execution reverted") {
		t.Errorf("Unexpected error %v", err)
	}
}

func TestHTTPProviderRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second, 0)
	_, err := p.Call(context.Background(), "eth_blockNumber", nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("Expected 429 error, got %v", err)
	}
	if stats := p.Monitor.GetStats(); stats.ThrottleCount429 != 1 {
		t.Errorf("Expected one 429 recorded, got %d", stats.ThrottleCount429)
	}
}

func TestHTTPProviderBlockedShortCircuits(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second, 0)
	p.Call(context.Background(), "eth_blockNumber", nil)
	if p.IsAvailable() {
		t.Error("Provider should be unavailable after 403")
	}
	if _, err := p.Call(context.Background(), "eth_blockNumber", nil); err == nil {
		t.Error("Expected blocked error")
	}
	if hits != 1 {
		t.Errorf("Expected blocked provider not to hit server, got %d hits", hits)
	}
}

func TestHTTPProviderBatchCallOutOfOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		if len(reqs) != 3 {
			t.Fatalf("Expected 3 requests, got %d", len(reqs))
		}
		w.Write([]byte(`[
			{"jsonrpc":"2.0","id":3,"result":"0x3"},
			{"jsonrpc":"2.0","id":1,"result":"0x1"},
			{"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"header not found"}}
		]`))
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second, 0)
	resps, err := p.BatchCall(context.Background(), []BatchRequest{
		{Method: "eth_getBlockByNumber", Params: []any{"0x1", false}},
		{Method: "eth_getBlockByNumber", Params: []any{"0x2", false}},
		{Method: "eth_getBlockByNumber", Params: []any{"0x3", false}},
	})
	if err != nil {
		t.Fatalf("BatchCall failed: %v", err)
	}
	if string(resps[0].Result) != `"0x1"` || string(resps[2].Result) != `"0x3"` {
		t.Errorf("Responses not matched by id: %+v", resps)
	}
	if resps[1].Error == nil {
		t.Error("Expected error for second request")
	}
}

func TestHTTPProviderClientThrottle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x1"}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("test", server.URL, 5*time.Second, 1)
	if _, err := p.Call(context.Background(), "eth_chainId", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Call(ctx, "eth_chainId", nil); err == nil {
		t.Error("Expected second call to exceed limiter wait")
	}
}
