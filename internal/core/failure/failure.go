// Package failure defines the closed error taxonomy shared by every layer that
// talks to the ledger.
//
// A Record is plain data: kind, severity, retryability and the call context it
// happened in. It implements error and unwraps to the original cause, so it can
// be returned across goroutines and inspected with errors.As.
//
//	if err := submit(); err != nil {
//	    rec := failure.From(err, failure.Context{Operation: "mint"})
//	    if rec.Retryable { ... }
//	}
package failure

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindNetwork             Kind = "NETWORK"
	KindRPC                 Kind = "RPC"
	KindContractRevert      Kind = "CONTRACT_REVERT"
	KindGasEstimationFailed Kind = "GAS_ESTIMATION_FAILED"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindExternalService     Kind = "EXTERNAL_SERVICE"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindValidation          Kind = "VALIDATION"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindServiceUnavailable  Kind = "SERVICE_UNAVAILABLE"
	KindUnknown             Kind = "UNKNOWN"
)

// Kinds lists every member of the taxonomy.
var Kinds = []Kind{
	KindNetwork,
	KindRPC,
	KindContractRevert,
	KindGasEstimationFailed,
	KindInsufficientFunds,
	KindExternalService,
	KindRateLimited,
	KindValidation,
	KindUnauthorized,
	KindServiceUnavailable,
	KindUnknown,
}

// Severity ranks how bad a failure is for operators.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Context describes the call a failure belongs to.
type Context struct {
	Operation  string
	Contract   string
	Function   string
	Parameters map[string]any
	Timestamp  time.Time
	Attempt    int
}

// merge overlays non-zero fields of other onto c.
func (c Context) merge(other Context) Context {
	out := c
	if other.Operation != "" {
		out.Operation = other.Operation
	}
	if other.Contract != "" {
		out.Contract = other.Contract
	}
	if other.Function != "" {
		out.Function = other.Function
	}
	if len(other.Parameters) > 0 {
		params := make(map[string]any, len(c.Parameters)+len(other.Parameters))
		maps.Copy(params, c.Parameters)
		maps.Copy(params, other.Parameters)
		out.Parameters = params
	}
	if !other.Timestamp.IsZero() {
		out.Timestamp = other.Timestamp
	}
	if other.Attempt > 0 {
		out.Attempt = other.Attempt
	}
	return out
}

// Record is a classified failure.
type Record struct {
	Kind      Kind
	Severity  Severity
	Message   string
	Context   Context
	Retryable bool

	// RetryAfterSeconds is set for RATE_LIMITED records.
	RetryAfterSeconds int

	Cause error
}

// New creates a record of the given kind.
func New(kind Kind, message string, ctx Context) *Record {
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now()
	}
	return &Record{
		Kind:      kind,
		Severity:  SeverityOf(kind),
		Message:   message,
		Context:   ctx,
		Retryable: IsRetryable(kind),
	}
}

// Newf creates a record with a formatted message.
func Newf(kind Kind, ctx Context, format string, args ...any) *Record {
	return New(kind, fmt.Sprintf(format, args...), ctx)
}

// From classifies err and returns it as a Record. An existing Record in the
// chain is copied and its context merged with ctx.
func From(err error, ctx Context) *Record {
	if err == nil {
		return nil
	}
	var existing *Record
	if errors.As(err, &existing) {
		out := *existing
		out.Context = existing.Context.merge(ctx)
		return &out
	}
	rec := New(Classify(err), err.Error(), ctx)
	rec.Cause = err
	return rec
}

func (r *Record) Error() string {
	var sb strings.Builder
	sb.WriteString(string(r.Kind))
	if r.Context.Operation != "" {
		sb.WriteString(" [")
		sb.WriteString(r.Context.Operation)
		sb.WriteString("]")
	}
	if r.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(r.Message)
	}
	if r.Context.Attempt > 1 {
		fmt.Fprintf(&sb, " (after %d attempts)", r.Context.Attempt)
	}
	return sb.String()
}

func (r *Record) Unwrap() error {
	return r.Cause
}

// Is matches another Record by kind, so errors.Is(err, &Record{Kind: k}) works.
func (r *Record) Is(target error) bool {
	t, ok := target.(*Record)
	if !ok {
		return false
	}
	return t.Kind == r.Kind && t.Message == ""
}
