// Package rpc fans ledger JSON-RPC calls out over a set of providers.
//
// Provider faults (transport errors, 429/403, 5xx) move the call to the next
// available provider. Answers from the node itself, such as a revert or a
// nonce error, are returned as-is: another provider would say the same thing.
// Retrying with backoff is left to the caller.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/nftrelay/internal/core/failure"
	"github.com/vietddude/nftrelay/internal/infra/rpc/provider"
	"github.com/vietddude/nftrelay/internal/metrics"
)

// ErrNoProviders is returned when the client has nothing to call.
var ErrNoProviders = errors.New("no ledger providers configured")

// Action determines how the client reacts to a provider error.
type Action int

const (
	ActionReturn Action = iota
	ActionFailover
)

// ClassifyError decides whether err is a node answer or a provider fault.
func ClassifyError(err error) Action {
	var rpcErr *provider.RPCError
	if !errors.As(err, &rpcErr) {
		return ActionFailover
	}
	switch failure.Classify(err) {
	case failure.KindRateLimited, failure.KindUnauthorized, failure.KindServiceUnavailable:
		return ActionFailover
	}
	// a lagging node may not have the block yet
	if rpcErr.Code == -32603 || strings.Contains(strings.ToLower(rpcErr.Message), "header not found") {
		return ActionFailover
	}
	return ActionReturn
}

// Client calls the first available provider and fails over on provider faults.
type Client struct {
	mu        sync.Mutex
	providers []provider.Provider
	preferred int
	logger    *slog.Logger
}

// NewClient creates a client over the given providers in priority order.
func NewClient(providers ...provider.Provider) *Client {
	return &Client{
		providers: providers,
		logger:    slog.Default(),
	}
}

// SetLogger overrides the client logger.
func (c *Client) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Providers returns the configured providers.
func (c *Client) Providers() []provider.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]provider.Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// order returns providers starting at the preferred one, unavailable ones last.
func (c *Client) order() []provider.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.providers)
	available := make([]provider.Provider, 0, n)
	var parked []provider.Provider
	for i := range n {
		p := c.providers[(c.preferred+i)%n]
		if p.IsAvailable() {
			available = append(available, p)
		} else {
			parked = append(parked, p)
		}
	}
	return append(available, parked...)
}

// promote makes p the first provider tried on the next call.
func (c *Client) promote(p provider.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, candidate := range c.providers {
		if candidate == p {
			if c.preferred != i {
				c.logger.Info("Ledger provider switched", "provider", p.GetName())
			}
			c.preferred = i
			return
		}
	}
}

// Call makes a JSON-RPC call with failover.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var result json.RawMessage
	err := c.each(ctx, method, func(p provider.Provider) error {
		var err error
		result, err = p.Call(ctx, method, params)
		return err
	})
	return result, err
}

// BatchCall sends a batch with failover. Per-request errors are returned in
// the responses and do not trigger failover.
func (c *Client) BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error) {
	var result []provider.BatchResponse
	err := c.each(ctx, "batch", func(p provider.Provider) error {
		var err error
		result, err = p.BatchCall(ctx, requests)
		return err
	})
	return result, err
}

func (c *Client) each(ctx context.Context, method string, call func(provider.Provider) error) error {
	providers := c.order()
	if len(providers) == 0 {
		return ErrNoProviders
	}

	var lastErr error
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := call(p)
		if err == nil {
			c.promote(p)
			return nil
		}

		metrics.RPCErrorsTotal.WithLabelValues(p.GetName(), string(failure.Classify(err))).Inc()
		if ClassifyError(err) == ActionReturn {
			return err
		}

		lastErr = err
		c.logger.Warn("Ledger provider failed, trying next",
			"provider", p.GetName(),
			"method", method,
			"latency", time.Since(start),
			"error", err,
		)
	}

	return fmt.Errorf("all providers failed: %w", lastErr)
}

// Close closes every provider.
func (c *Client) Close() error {
	var errs []error
	for _, p := range c.Providers() {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
