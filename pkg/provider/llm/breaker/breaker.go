// Package breaker wraps an llm.Provider with a three-state circuit breaker
// (closed → open → half-open) so that a provider outage fails fast instead of
// holding every speaker's slot until its timeout expires.
//
// The breaker sits outside the retry decorator: a call that exhausts its
// retries counts as a single failure here. Malformed output does not trip the
// breaker — the provider answered, the answer was just bad.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/personaforge/pkg/provider/llm"
)

// ErrOpen is returned by [Provider.Complete] while the breaker is open and
// the reset timeout has not yet elapsed.
var ErrOpen = errors.New("breaker: circuit is open")

// State represents the current operating mode of the breaker.
type State int

const (
	// StateClosed is the normal operating state — all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive
	// failures. Calls are rejected immediately with [ErrOpen] until the
	// reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout. A
	// limited number of calls are allowed through; if they succeed the
	// breaker closes, otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
	defaultHalfOpenMax  = 3
)

// Option is a functional option for [Provider].
type Option func(*Provider)

// WithMaxFailures sets the number of consecutive failures in the closed
// state before the breaker opens. Default: 5.
func WithMaxFailures(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long the breaker stays open before transitioning
// to half-open. Default: 30s.
func WithResetTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.resetTimeout = d
		}
	}
}

// WithHalfOpenMax sets the maximum number of probe calls allowed in the
// half-open state before the breaker decides whether to close or re-open.
// Default: 3.
func WithHalfOpenMax(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.halfOpenMax = n
		}
	}
}

// Provider decorates an [llm.Provider] with the circuit breaker pattern.
// It is safe for concurrent use when the wrapped provider is.
type Provider struct {
	inner        llm.Provider
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// Wrap returns inner decorated with the circuit breaker.
func Wrap(inner llm.Provider, opts ...Option) *Provider {
	p := &Provider{
		inner:        inner,
		maxFailures:  defaultMaxFailures,
		resetTimeout: defaultResetTimeout,
		halfOpenMax:  defaultHalfOpenMax,
		state:        StateClosed,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Complete implements llm.Provider. In the open state it returns [ErrOpen]
// without calling the wrapped provider. In the half-open state a limited
// number of probe calls are permitted.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	inHalfOpen, err := p.admit()
	if err != nil {
		return nil, err
	}

	resp, err := p.inner.Complete(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil && countsAsFailure(err) {
		p.recordFailure(inHalfOpen)
	} else {
		p.recordSuccess(inHalfOpen)
	}
	return resp, err
}

// admit decides whether the call may proceed and performs the open →
// half-open transition when the reset timeout has elapsed.
func (p *Provider) admit() (inHalfOpen bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateOpen:
		if time.Since(p.lastFailure) < p.resetTimeout {
			return false, ErrOpen
		}
		p.state = StateHalfOpen
		p.halfOpenCalls = 0
		p.halfOpenFails = 0
		slog.Info("circuit breaker transitioning to half-open")

	case StateHalfOpen:
		if p.halfOpenCalls >= p.halfOpenMax {
			// Probe budget exhausted — stay open.
			return false, ErrOpen
		}
	}

	if p.state == StateHalfOpen {
		p.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

// countsAsFailure reports whether err should trip the breaker. Malformed
// output means the provider is up; only transport-level failures count.
func countsAsFailure(err error) bool {
	return llm.KindOf(err) != llm.KindMalformed
}

// recordFailure handles failure accounting. Must be called with p.mu held.
func (p *Provider) recordFailure(inHalfOpen bool) {
	p.lastFailure = time.Now()

	if inHalfOpen {
		p.halfOpenFails++
		// Any failure in half-open immediately re-opens.
		p.state = StateOpen
		p.consecutiveFail = p.maxFailures
		slog.Warn("circuit breaker re-opened from half-open")
		return
	}

	p.consecutiveFail++
	if p.consecutiveFail >= p.maxFailures {
		p.state = StateOpen
		slog.Warn("circuit breaker opened",
			"consecutive_failures", p.consecutiveFail)
	}
}

// recordSuccess handles success accounting. Must be called with p.mu held.
func (p *Provider) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		successes := p.halfOpenCalls - p.halfOpenFails
		if successes >= p.halfOpenMax {
			p.state = StateClosed
			p.consecutiveFail = 0
			p.halfOpenCalls = 0
			p.halfOpenFails = 0
			slog.Info("circuit breaker closed after successful probes")
		}
		return
	}
	p.consecutiveFail = 0
}

// State returns the current [State] of the breaker. If the breaker is open
// and the reset timeout has elapsed, the returned state is [StateHalfOpen]
// (the actual transition happens on the next [Complete] call).
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateOpen && time.Since(p.lastFailure) >= p.resetTimeout {
		return StateHalfOpen
	}
	return p.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all
// failure counters.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateClosed
	p.consecutiveFail = 0
	p.halfOpenCalls = 0
	p.halfOpenFails = 0
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
