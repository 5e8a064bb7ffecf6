package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/personaforge/internal/observe"
)

func TestNewMetrics_InstrumentsRecord(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}

	ctx := context.Background()
	m.RecordStage(ctx, "extracting", 1.5)
	m.RecordPersona(ctx, "succeeded")
	m.RecordFallback(ctx, "timeout")
	m.RecordProviderError(ctx, "openai", "rate_limit")
	m.InFlightSpeakers.Add(ctx, 1)
	m.InFlightSpeakers.Add(ctx, -1)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("no metrics collected")
	}

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metr := range sm.Metrics {
			names[metr.Name] = true
		}
	}
	for _, want := range []string{
		"personaforge.stage.duration",
		"personaforge.personas.produced",
		"personaforge.fallbacks",
		"personaforge.provider.errors",
		"personaforge.in_flight_speakers",
	} {
		if !names[want] {
			t.Errorf("metric %q not collected; got %v", want, names)
		}
	}
}
