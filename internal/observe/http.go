package observe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the Prometheus bridge over HTTP for the duration of
// a run:
//
//   - /metrics — Prometheus scrape endpoint backed by the exporter
//     registered in [InitProvider].
//   - /healthz — liveness probe; always returns 200 OK.
//
// A batch run is short-lived, so the server is opt-in and torn down with the
// process; without it every recorded metric would be unreachable.
type MetricsServer struct {
	srv *http.Server
	ln  net.Listener
}

// StartMetricsServer binds addr and begins serving in a background
// goroutine. A nil gatherer uses [prometheus.DefaultGatherer], which is
// where [InitProvider]'s exporter registers.
func StartMetricsServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) (*MetricsServer, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", healthz)

	s := &MetricsServer{
		srv: &http.Server{Handler: mux},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *MetricsServer) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown gracefully stops the server, waiting for in-flight scrapes up to
// the context deadline.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// healthz is a liveness probe. A running process that can serve HTTP is
// considered alive.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
