package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/nftrelay/internal/core/config"
	"github.com/vietddude/nftrelay/internal/core/domain"
	"github.com/vietddude/nftrelay/internal/eventsync"
	"github.com/vietddude/nftrelay/internal/health"
)

const gradingABI = `[
	{"type":"function","name":"assignGrade","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"tokenId","type":"uint256"},{"name":"grade","type":"uint16"}]},
	{"type":"event","name":"GradeAssigned","anonymous":false,
	 "inputs":[
		{"name":"tokenId","type":"uint256","indexed":true},
		{"name":"grade","type":"uint16","indexed":false}
	 ]}
]`

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type rpcReq struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// ledgerNode answers the read calls the relay makes while idle.
func ledgerNode(t *testing.T) *httptest.Server {
	t.Helper()
	result := func(method string) any {
		switch method {
		case "eth_blockNumber":
			return "0x64"
		case "eth_chainId":
			return "0x13882"
		case "eth_getLogs":
			return []any{}
		case "eth_getBlockByNumber":
			return map[string]any{
				"number":     "0x64",
				"hash":       fmt.Sprintf("0x%064x", 100),
				"parentHash": fmt.Sprintf("0x%064x", 99),
				"timestamp":  "0x6553f100",
			}
		}
		return nil
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			var reqs []rpcReq
			_ = json.Unmarshal(raw, &reqs)
			out := make([]map[string]any, 0, len(reqs))
			for _, req := range reqs {
				out = append(out, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result(req.Method)})
			}
			_ = json.NewEncoder(w).Encode(out)
			return
		}
		var req rpcReq
		_ = json.Unmarshal(raw, &req)
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result(req.Method)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Ledger: config.LedgerConfig{
			ChainID:   80002,
			Providers: []config.ProviderConfig{{Name: "local", URL: url, Timeout: 2 * time.Second}},
		},
		Signer: config.SignerConfig{PrivateKey: testKey},
		Contracts: []config.ContractConfig{{
			Key:     "grading",
			Address: "0x2000000000000000000000000000000000000002",
			ABI:     gradingABI,
			Events:  []string{"GradeAssigned"},
		}},
		Sync: eventsync.Config{Interval: time.Hour},
	}
}

func TestApp_Lifecycle(t *testing.T) {
	node := ledgerNode(t)
	ctx := context.Background()

	app, err := NewApp(ctx, testConfig(node.URL))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !app.Service().Monitoring() {
		t.Error("expected monitoring after Start")
	}
	if n := app.Service().Subscriptions(); n != 1 {
		t.Errorf("expected 1 configured subscription, got %d", n)
	}

	report := app.Health().CheckHealth(ctx)
	if report.Status == health.StatusCritical {
		t.Errorf("unexpected critical report: %+v", report)
	}
	if report.Sync.HeadBlock != 100 {
		t.Errorf("expected head 100, got %d", report.Sync.HeadBlock)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if app.Service().Monitoring() {
		t.Error("expected monitoring stopped")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.Signer.PrivateKey = ""
	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNewApp_BadSigner(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Signer.PrivateKey = "not-a-key"
	_, err := NewApp(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "signer") {
		t.Fatalf("expected signer error, got %v", err)
	}
}

func TestLogEvent(t *testing.T) {
	var sb strings.Builder
	cb := LogEvent(slog.New(slog.NewTextHandler(&sb, nil)))
	err := cb(context.Background(), domain.ProcessedEvent{
		ContractKey: "grading",
		EventName:   "GradeAssigned",
		BlockNumber: 42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sb.String(), "block=42") {
		t.Errorf("expected block in log line, got %q", sb.String())
	}
}
