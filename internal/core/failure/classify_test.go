package failure

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"
)

type codedErr struct {
	code int
	msg  string
}

func (e *codedErr) Error() string  { return fmt.Sprintf("rpc error %d: %s", e.code, e.msg) }
func (e *codedErr) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect Kind
	}{
		{errors.New("429 Too Many Requests"), KindRateLimited},
		{errors.New("project rate limit exceeded"), KindRateLimited},
		{errors.New("403 Forbidden"), KindUnauthorized},
		{errors.New("execution reverted: grade out of range"), KindContractRevert},
		{errors.New("insufficient funds for gas * price + value"), KindInsufficientFunds},
		{errors.New("gas required exceeds allowance (30000000)"), KindGasEstimationFailed},
		{errors.New("dial tcp 127.0.0.1:8545: connection refused"), KindNetwork},
		{errors.New("read: connection reset by peer"), KindNetwork},
		{errors.New("rpc error: header not found"), KindRPC},
		{errors.New("nonce too low"), KindRPC},
		{errors.New("http 503: service unavailable"), KindServiceUnavailable},
		{errors.New("Invalid JSON-RPC request -32600"), KindValidation},
		{errors.New("scoring service returned garbage"), KindExternalService},
		{errors.New("something odd"), KindUnknown},
		{context.DeadlineExceeded, KindNetwork},
		{fmt.Errorf("wrapped: %w", New(KindUnauthorized, "bad key", Context{})), KindUnauthorized},
		{errors.New("rate limited (429), retry after: 30s"), KindRateLimited},
		{errors.New("ip blocked (403)"), KindUnauthorized},
		{errors.New("http 401: missing key"), KindUnauthorized},
		{errors.New("http 500: oops"), KindRPC},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expect {
			t.Errorf("Classify(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestClassifyIgnoresNumbersInWrapText(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect Kind
	}{
		{
			name:   "refused with key in url",
			err:    errors.New(`rpc call: Post "https://eth.example.io/v3/9f24013be7c1": dial tcp 10.0.0.7:443: connect: connection refused`),
			expect: KindNetwork,
		},
		{
			name:   "refused with block range",
			err:    errors.New("collect [18450290, 18450299]: rpc call: connection refused"),
			expect: KindNetwork,
		},
		{
			name: "typed transport error",
			err: fmt.Errorf("rpc call: %w", &url.Error{
				Op:  "Post",
				URL: "https://eth.example.io/v3/4290403",
				Err: syscall.ECONNREFUSED,
			}),
			expect: KindNetwork,
		},
		{
			name:   "server error code with number in message",
			err:    fmt.Errorf("eth_getLogs [18450290]: %w", &codedErr{code: -32000, msg: "header not found"}),
			expect: KindRPC,
		},
		{
			name:   "revert code",
			err:    &codedErr{code: 3, msg: "execution reverted"},
			expect: KindContractRevert,
		},
		{
			name:   "invalid params code",
			err:    &codedErr{code: -32602, msg: "bad block"},
			expect: KindValidation,
		},
		{
			name:   "limit exceeded code",
			err:    &codedErr{code: -32005, msg: "limit exceeded"},
			expect: KindRateLimited,
		},
		{
			name:   "node message classified by text",
			err:    &codedErr{code: -32000, msg: "insufficient funds for gas * price + value"},
			expect: KindInsufficientFunds,
		},
		{
			name:   "coded error inside throttle wrap",
			err:    fmt.Errorf("throttle in rpc error: %w", &codedErr{code: -32000, msg: "daily request count exceeded"}),
			expect: KindRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expect {
				t.Errorf("Classify(%q) = %v, want %v", tt.err, got, tt.expect)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindNetwork:            true,
		KindRPC:                true,
		KindExternalService:    true,
		KindRateLimited:        true,
		KindServiceUnavailable: true,
	}
	for _, k := range Kinds {
		if got := IsRetryable(k); got != retryable[k] {
			t.Errorf("IsRetryable(%s) = %v, want %v", k, got, retryable[k])
		}
	}
}

func TestSeverityOfCoversTaxonomy(t *testing.T) {
	for _, k := range Kinds {
		if _, ok := severities[k]; !ok {
			t.Errorf("no severity for %s", k)
		}
	}
	if SeverityOf(KindInsufficientFunds) != SeverityCritical {
		t.Errorf("expected critical severity for insufficient funds")
	}
}

func TestFromMergesContext(t *testing.T) {
	base := New(KindRPC, "boom", Context{Operation: "sendTransaction", Contract: "grading"})
	rec := From(fmt.Errorf("outer: %w", base), Context{Function: "mint", Attempt: 3})

	if rec.Kind != KindRPC {
		t.Fatalf("expected RPC, got %s", rec.Kind)
	}
	if rec.Context.Operation != "sendTransaction" || rec.Context.Function != "mint" {
		t.Errorf("context not merged: %+v", rec.Context)
	}
	if rec.Context.Attempt != 3 {
		t.Errorf("expected attempt 3, got %d", rec.Context.Attempt)
	}
	if base.Context.Function != "" {
		t.Errorf("original record mutated")
	}
}

func TestFromPlainError(t *testing.T) {
	cause := errors.New("connection refused")
	rec := From(cause, Context{Operation: "getBlockNumber"})
	if rec.Kind != KindNetwork || !rec.Retryable {
		t.Errorf("unexpected record %+v", rec)
	}
	if !errors.Is(rec, cause) {
		t.Errorf("record should unwrap to cause")
	}
	if !errors.Is(rec, &Record{Kind: KindNetwork}) {
		t.Errorf("errors.Is should match by kind")
	}
}
