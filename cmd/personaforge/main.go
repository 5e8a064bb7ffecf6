// Command personaforge ingests raw interview transcripts and produces
// structured persona records as JSON (and optionally an XLSX report).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	natsio "github.com/nats-io/nats.go"

	"github.com/MrWong99/personaforge/internal/assemble"
	"github.com/MrWong99/personaforge/internal/config"
	"github.com/MrWong99/personaforge/internal/event"
	"github.com/MrWong99/personaforge/internal/evidence"
	"github.com/MrWong99/personaforge/internal/extract"
	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/pipeline"
	"github.com/MrWong99/personaforge/internal/report"
	"github.com/MrWong99/personaforge/internal/segment"
	"github.com/MrWong99/personaforge/pkg/provider/llm"
	"github.com/MrWong99/personaforge/pkg/provider/llm/anyllm"
	"github.com/MrWong99/personaforge/pkg/provider/llm/breaker"
	"github.com/MrWong99/personaforge/pkg/provider/llm/retry"
	"github.com/MrWong99/personaforge/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inPath := flag.String("in", "-", "transcript file to process, or - for stdin")
	records := flag.Bool("records", false, "treat input as pre-segmented JSON records instead of raw text")
	outPath := flag.String("out", "-", "where to write the persona JSON, or - for stdout")
	reportPath := flag.String("report", "", "optional path for an XLSX report of the run")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "personaforge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "personaforge: %v\n", err)
		}
		return 1
	}
	if key := os.Getenv("PERSONAFORGE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("personaforge starting",
		"config", *configPath,
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "personaforge"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	if cfg.Metrics.ListenAddr != "" {
		srv, err := observe.StartMetricsServer(cfg.Metrics.ListenAddr, nil, logger)
		if err != nil {
			slog.Error("failed to start metrics server", "addr", cfg.Metrics.ListenAddr, "err", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown error", "err", err)
			}
		}()
	}

	// ── Provider ──────────────────────────────────────────────────────────────
	provider, err := buildProvider(cfg.Provider)
	if err != nil {
		slog.Error("failed to build provider", "err", err)
		return 1
	}

	// ── Event sink (optional) ─────────────────────────────────────────────────
	var sink event.Sink = event.NoopSink{}
	if cfg.Events.NATSURL != "" {
		conn, err := natsio.Connect(cfg.Events.NATSURL)
		if err != nil {
			slog.Error("failed to connect to NATS", "url", cfg.Events.NATSURL, "err", err)
			return 1
		}
		defer conn.Close()
		var natsOpts []event.NATSOption
		if cfg.Events.SubjectPrefix != "" {
			natsOpts = append(natsOpts, event.WithSubjectPrefix(cfg.Events.SubjectPrefix))
		}
		sink = event.NewNATSSink(conn, natsOpts...)
		slog.Info("event sink connected", "url", cfg.Events.NATSURL)
	}

	// ── Read and segment the input ────────────────────────────────────────────
	input, err := readInput(*inPath)
	if err != nil {
		slog.Error("failed to read input", "err", err)
		return 1
	}

	segmenter := segment.New(segment.WithMinDialogueLength(cfg.Segmenter.MinDialogueLength))
	segments, err := segmentInput(segmenter, input, *records)
	if err != nil {
		slog.Error("segmentation failed", "err", err)
		return 1
	}
	scopes := segment.BuildScopes(segments)
	slog.Info("transcript segmented", "segments", len(segments), "speakers", len(scopes))

	// ── Pipeline ──────────────────────────────────────────────────────────────
	orchestrator := buildOrchestrator(cfg, provider, sink)

	result, err := orchestrator.ProcessAll(ctx, scopes)
	if err != nil {
		slog.Error("pipeline aborted", "err", err)
		return 1
	}

	succeeded := 0
	for _, st := range result.Statuses {
		if st.Outcome == types.OutcomeSucceeded {
			succeeded++
		}
	}
	slog.Info("pipeline finished",
		"personas", len(result.Personas),
		"succeeded", succeeded,
		"fallbacks", len(result.Personas)-succeeded,
	)

	// ── Output ────────────────────────────────────────────────────────────────
	if err := writeOutput(*outPath, result); err != nil {
		slog.Error("failed to write output", "err", err)
		return 1
	}
	if *reportPath != "" {
		if err := report.WriteXLSX(*reportPath, result); err != nil {
			slog.Error("failed to write report", "path", *reportPath, "err", err)
			return 1
		}
		slog.Info("report written", "path", *reportPath)
	}
	return 0
}

// buildProvider constructs the configured text-generation backend wrapped in
// the bounded retry decorator, a circuit breaker, and request/error
// instrumentation. The breaker sees each retried call as one attempt, so a
// provider outage trips it after a few speakers instead of after maxRetries
// times as many raw requests; instrumentation is outermost so one logical
// request counts once.
func buildProvider(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	inner, err := anyllm.New(entry.Name, entry.Model, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %q provider: %w", entry.Name, err)
	}
	retried := retry.Wrap(inner, retry.WithMaxRetries(uint64(entry.MaxRetries)))
	return observe.InstrumentProvider(breaker.Wrap(retried), entry.Name, nil), nil
}

// buildOrchestrator wires the pipeline components from cfg.
func buildOrchestrator(cfg *config.Config, provider llm.Provider, sink event.Sink) *pipeline.Orchestrator {
	executor := pipeline.NewBoundedExecutor(cfg.Pipeline.MaxConcurrent, cfg.Pipeline.StageTimeout())
	extractor := extract.NewClient(provider,
		extract.WithTemperature(cfg.Pipeline.Temperature),
		extract.WithMaxTokens(cfg.Pipeline.MaxTokens),
	)
	linker := evidence.New(evidence.WithThreshold(cfg.Linker.Threshold))

	opts := []pipeline.Option{
		pipeline.WithEventSink(sink),
		pipeline.WithPostProcessing(pipeline.PostProcessOptions{
			QualityGate:      cfg.PostProcess.QualityGate,
			KeywordHighlight: cfg.PostProcess.KeywordHighlight,
			ReformatTraits:   cfg.PostProcess.ReformatTraits,
			Dedup:            cfg.PostProcess.Dedup,
		}),
	}
	if cfg.Pipeline.CleanScopes {
		opts = append(opts, pipeline.WithCleaner(extract.NewCleaner(provider, nil)))
	}
	return pipeline.NewOrchestrator(executor, extractor, linker, assemble.New(), opts...)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// segmentInput parses the input either as raw transcript text or as
// pre-segmented {speaker, text, document_id?} JSON records.
func segmentInput(s *segment.Segmenter, input []byte, asRecords bool) ([]types.TranscriptSegment, error) {
	if !asRecords {
		return s.Segment(string(input))
	}
	var recs []segment.Record
	if err := json.Unmarshal(input, &recs); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	return s.FromRecords(recs)
}

func writeOutput(path string, result *types.BatchResult) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
