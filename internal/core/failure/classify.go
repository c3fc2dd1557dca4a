package failure

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var severities = map[Kind]Severity{
	KindNetwork:             SeverityMedium,
	KindRPC:                 SeverityMedium,
	KindContractRevert:      SeverityHigh,
	KindGasEstimationFailed: SeverityMedium,
	KindInsufficientFunds:   SeverityCritical,
	KindExternalService:     SeverityMedium,
	KindRateLimited:         SeverityLow,
	KindValidation:          SeverityLow,
	KindUnauthorized:        SeverityHigh,
	KindServiceUnavailable:  SeverityHigh,
	KindUnknown:             SeverityMedium,
}

// SeverityOf returns the fixed severity for a kind.
func SeverityOf(kind Kind) Severity {
	if s, ok := severities[kind]; ok {
		return s
	}
	return SeverityMedium
}

// IsRetryable reports whether failures of this kind may succeed on retry.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindNetwork, KindRPC, KindExternalService, KindRateLimited, KindServiceUnavailable:
		return true
	default:
		return false
	}
}

// pattern order matters: the first matching group wins. Node messages that
// name a specific cause come first, then transport faults, then status codes
// in the wording the HTTP provider produces. Bare numbers are never matched
// since URLs and block numbers appear in wrapped messages.
var patterns = []struct {
	kind  Kind
	needs []string
}{
	{KindInsufficientFunds, []string{
		"insufficient funds",
		"insufficient balance",
	}},
	{KindGasEstimationFailed, []string{
		"cannot estimate gas",
		"gas required exceeds",
		"unpredictable_gas_limit",
		"estimategas",
	}},
	{KindContractRevert, []string{
		"execution reverted",
		"revert",
		"call_exception",
		"invalid opcode",
	}},
	{KindNetwork, []string{
		"connection refused",
		"connection reset",
		"econnrefused",
		"econnreset",
		"etimedout",
		"no such host",
		"i/o timeout",
		"timeout",
		"eof",
		"broken pipe",
		"network",
		"dial tcp",
	}},
	{KindRateLimited, []string{
		"(429)",
		"http 429",
		"too many requests",
		"rate limit",
		"quota exceeded",
		"count exceeded",
		"throttle",
	}},
	{KindUnauthorized, []string{
		"(401)",
		"(403)",
		"http 401",
		"http 403",
		"unauthorized",
		"forbidden",
		"invalid api key",
		"permission denied",
	}},
	{KindServiceUnavailable, []string{
		"http 502",
		"http 503",
		"http 504",
		"service unavailable",
		"bad gateway",
		"circuit breaker",
		"maintenance",
	}},
	{KindValidation, []string{
		"-32602",
		"-32600",
		"invalid argument",
		"invalid params",
		"invalid address",
		"validation",
	}},
	{KindExternalService, []string{
		"external service",
		"upstream",
		"scoring service",
	}},
	{KindRPC, []string{
		"rpc",
		"nonce too low",
		"replacement transaction underpriced",
		"already known",
		"header not found",
		"internal server error",
		"http 500",
	}},
}

// Classify maps an arbitrary error onto the taxonomy. A typed Record anywhere in
// the chain wins, then JSON-RPC error codes and transport errors; otherwise the
// error text is matched best-effort.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var rec *Record
	if errors.As(err, &rec) && rec.Kind != "" {
		return rec.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}

	var coded rpc.Error
	if errors.As(err, &coded) {
		return classifyCode(coded.ErrorCode(), coded.Error())
	}

	// *url.Error from the HTTP client is a net.Error too
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	return matchText(err.Error())
}

// classifyCode handles an error the node answered with. Only the node's own
// message is matched, never the surrounding wrap text.
func classifyCode(code int, msg string) Kind {
	switch code {
	case 3:
		return KindContractRevert
	case -32700, -32600, -32602:
		return KindValidation
	case -32005:
		return KindRateLimited
	}
	if k := matchText(msg); k != KindUnknown {
		return k
	}
	return KindRPC
}

func matchText(text string) Kind {
	msg := strings.ToLower(text)
	for _, p := range patterns {
		for _, needle := range p.needs {
			if strings.Contains(msg, needle) {
				return p.kind
			}
		}
	}
	return KindUnknown
}
