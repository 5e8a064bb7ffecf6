package observe_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/personaforge/internal/observe"
)

func TestMetricsServer_ServesRecordedMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		t.Fatalf("prometheus exporter: %v", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}
	m.RecordPersona(context.Background(), "succeeded")

	srv, err := observe.StartMetricsServer("127.0.0.1:0", reg, nil)
	if err != nil {
		t.Fatalf("StartMetricsServer returned error: %v", err)
	}
	defer srv.Shutdown(context.Background())

	body := get(t, "http://"+srv.Addr()+"/metrics")
	if !strings.Contains(body, "personaforge_personas_produced") {
		t.Errorf("scrape output missing persona counter:\n%s", body)
	}
}

func TestMetricsServer_Healthz(t *testing.T) {
	t.Parallel()

	srv, err := observe.StartMetricsServer("127.0.0.1:0", prometheus.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("StartMetricsServer returned error: %v", err)
	}
	defer srv.Shutdown(context.Background())

	body := get(t, "http://"+srv.Addr()+"/healthz")
	if !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("healthz body = %s", body)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}
