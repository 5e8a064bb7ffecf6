// Package retry wraps an llm.Provider with a conservative bounded retry
// policy.
//
// Retry/backoff is the service client's responsibility — call sites above it
// (extraction, cleanup) never retry. The policy is deliberately cautious to
// avoid amplifying load while the provider is rate limiting: few attempts,
// capped exponential backoff, and only for error kinds that are actually
// transient ([llm.KindTimeout], [llm.KindRateLimit]). Malformed output is
// never retried — it is repaired or degraded downstream.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrWong99/personaforge/pkg/provider/llm"
)

const (
	defaultMaxRetries      = 2
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 8 * time.Second
)

// Option is a functional option for [Provider].
type Option func(*Provider)

// WithMaxRetries sets how many times a failed call is retried after the
// first attempt. Default: 2.
func WithMaxRetries(n uint64) Option {
	return func(p *Provider) {
		p.maxRetries = n
	}
}

// WithInitialInterval sets the first backoff delay. Default: 500ms.
func WithInitialInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.initialInterval = d
	}
}

// WithMaxInterval caps the backoff delay. Default: 8s.
func WithMaxInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.maxInterval = d
	}
}

// Provider decorates an [llm.Provider] with bounded retry. It is safe for
// concurrent use when the wrapped provider is.
type Provider struct {
	inner           llm.Provider
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Wrap returns inner decorated with the retry policy.
func Wrap(inner llm.Provider, opts ...Option) *Provider {
	p := &Provider{
		inner:           inner,
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Complete implements llm.Provider. Transient failures (timeout, rate limit)
// are retried with capped exponential backoff; all other failures surface
// immediately. Rate limits are logged distinctly for operational visibility.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialInterval
	bo.MaxInterval = p.maxInterval

	var resp *llm.CompletionResponse
	op := func() error {
		var err error
		resp, err = p.inner.Complete(ctx, req)
		if err == nil {
			return nil
		}
		if !llm.Retryable(err) {
			return backoff.Permanent(err)
		}
		if llm.KindOf(err) == llm.KindRateLimit {
			slog.Warn("provider rate limited, backing off", "error", err)
		} else {
			slog.Debug("provider call failed, retrying", "error", err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CountTokens implements llm.Provider by delegating to the wrapped provider.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return p.inner.CountTokens(messages)
}

// Capabilities implements llm.Provider by delegating to the wrapped provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.inner.Capabilities()
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
