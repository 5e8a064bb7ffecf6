package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/personaforge/pkg/provider/llm"
)

// instrumentedProvider decorates an [llm.Provider] with request and error
// counters.
type instrumentedProvider struct {
	inner   llm.Provider
	name    string
	metrics *Metrics
}

// InstrumentProvider wraps inner so every completion increments
// [Metrics.ProviderRequests] by status, and every failure increments
// [Metrics.ProviderErrors] by error kind. name labels the backend in both
// counters.
//
// Place this outermost in the decorator chain — outside retry and breaker —
// so one logical request counts once regardless of internal attempts.
func InstrumentProvider(inner llm.Provider, name string, m *Metrics) llm.Provider {
	if m == nil {
		m = DefaultMetrics()
	}
	return &instrumentedProvider{inner: inner, name: name, metrics: m}
}

// Complete implements llm.Provider.
func (p *instrumentedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.inner.Complete(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
		p.metrics.RecordProviderError(ctx, p.name, string(llm.KindOf(err)))
	}
	p.metrics.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", p.name),
		attribute.String("status", status),
	))
	return resp, err
}

// CountTokens implements llm.Provider by delegating to the wrapped provider.
func (p *instrumentedProvider) CountTokens(messages []llm.Message) (int, error) {
	return p.inner.CountTokens(messages)
}

// Capabilities implements llm.Provider by delegating to the wrapped provider.
func (p *instrumentedProvider) Capabilities() llm.ModelCapabilities {
	return p.inner.Capabilities()
}

// Ensure instrumentedProvider implements llm.Provider at compile time.
var _ llm.Provider = (*instrumentedProvider)(nil)
