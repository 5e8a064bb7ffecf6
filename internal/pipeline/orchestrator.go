// Package pipeline orchestrates the per-speaker extraction chain under a
// global concurrency bound.
//
// One task runs per detected speaker: clean the scoped text, extract
// attributes, link evidence, filter it, assemble the persona. Any failure in
// the chain is absorbed locally and converted into a fallback persona — no
// speaker's failure may escape to fail the batch, and the output always
// contains exactly one persona per input scope.
//
// Stage timeline per speaker: Scoped → Cleaning → Extracting → Linking →
// Filtering → Assembling → Done, with any stage able to divert to Fallback →
// Done. No stage is retried here; retries live in the provider decorator.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/personaforge/internal/assemble"
	"github.com/MrWong99/personaforge/internal/event"
	"github.com/MrWong99/personaforge/internal/evidence"
	"github.com/MrWong99/personaforge/internal/extract"
	"github.com/MrWong99/personaforge/internal/observe"
	"github.com/MrWong99/personaforge/internal/segment"
	"github.com/MrWong99/personaforge/pkg/provider/llm"
	"github.com/MrWong99/personaforge/pkg/types"
)

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithCleaner enables the optional service-assisted scope cleanup stage.
// Cleaning is fail-open; without a cleaner only the local foreign-line strip
// runs.
func WithCleaner(c *extract.Cleaner) Option {
	return func(o *Orchestrator) {
		o.cleaner = c
	}
}

// WithEventSink sets the sink lifecycle events are published to.
// Defaults to [event.NoopSink].
func WithEventSink(s event.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the structured logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithPostProcessing sets the optional post-processing toggles applied to
// the assembled persona list.
func WithPostProcessing(opts PostProcessOptions) Option {
	return func(o *Orchestrator) {
		o.post = opts
	}
}

// Orchestrator runs the per-speaker pipelines. Safe for concurrent use —
// read-only after construction.
type Orchestrator struct {
	executor  *BoundedExecutor
	extractor *extract.Client
	linker    *evidence.Linker
	assembler *assemble.Assembler

	cleaner *extract.Cleaner
	sink    event.Sink
	metrics *observe.Metrics
	logger  *slog.Logger
	post    PostProcessOptions
}

// NewOrchestrator wires the pipeline together. executor, extractor, linker,
// and assembler are required; everything else is optional.
func NewOrchestrator(executor *BoundedExecutor, extractor *extract.Client, linker *evidence.Linker, assembler *assemble.Assembler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor:  executor,
		extractor: extractor,
		linker:    linker,
		assembler: assembler,
		sink:      event.NoopSink{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// ProcessAll runs the full chain for every scope concurrently, bounded by
// the executor, and returns one persona per scope.
//
// The returned error is non-nil only when ctx was cancelled before the run
// completed; per-speaker failures surface as fallback personas and statuses,
// never as errors. Persona order is not guaranteed to match scope order.
func (o *Orchestrator) ProcessAll(ctx context.Context, scopes []types.SpeakerScope) (*types.BatchResult, error) {
	runID := uuid.NewString()
	started := time.Now()
	o.publish(ctx, event.Event{Type: event.TypeRunStarted, RunID: runID})

	allSpeakers := make([]string, len(scopes))
	for i, sc := range scopes {
		allSpeakers[i] = sc.Speaker
	}

	personas := make([]types.Persona, len(scopes))
	statuses := make([]types.SpeakerStatus, len(scopes))

	var wg sync.WaitGroup
	for i := range scopes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			personas[i], statuses[i] = o.processSpeaker(ctx, runID, &scopes[i], allSpeakers)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	PostProcess(personas, o.post, o.logger)

	o.metrics.RunDuration.Record(ctx, time.Since(started).Seconds())
	o.publish(ctx, event.Event{Type: event.TypeRunFinished, RunID: runID})

	return &types.BatchResult{Personas: personas, Statuses: statuses}, nil
}

// processSpeaker runs one speaker's chain under an execution slot. It never
// returns an error: failures convert to a fallback persona.
func (o *Orchestrator) processSpeaker(ctx context.Context, runID string, scope *types.SpeakerScope, allSpeakers []string) (types.Persona, types.SpeakerStatus) {
	o.publish(ctx, event.Event{Type: event.TypeSpeakerStarted, RunID: runID, Speaker: scope.Speaker})

	var persona types.Persona
	err := o.executor.Do(ctx, func(ctx context.Context) error {
		o.metrics.InFlightSpeakers.Add(ctx, 1)
		defer o.metrics.InFlightSpeakers.Add(ctx, -1)

		p, chainErr := o.runChain(ctx, scope, allSpeakers)
		if chainErr != nil {
			return chainErr
		}
		persona = p
		return nil
	})

	if err != nil {
		o.logger.Warn("speaker pipeline failed, synthesizing fallback",
			"speaker", scope.Speaker, "error", err, "kind", llm.KindOf(err))
		o.metrics.RecordFallback(ctx, string(llm.KindOf(err)))
		o.metrics.RecordPersona(ctx, string(types.OutcomeFallback))
		o.publish(ctx, event.Event{
			Type: event.TypeSpeakerFallback, RunID: runID,
			Speaker: scope.Speaker, Reason: err.Error(),
		})
		return assemble.Synthesize(scope.Role, scope.Speaker), types.SpeakerStatus{
			Speaker: scope.Speaker,
			Outcome: types.OutcomeFallback,
			Reason:  err.Error(),
		}
	}

	o.metrics.RecordPersona(ctx, string(types.OutcomeSucceeded))
	o.publish(ctx, event.Event{Type: event.TypeSpeakerSucceeded, RunID: runID, Speaker: scope.Speaker})
	return persona, types.SpeakerStatus{Speaker: scope.Speaker, Outcome: types.OutcomeSucceeded}
}

// runChain executes the stage sequence for one speaker.
//
// Extraction reads the cleaned text, but evidence linking always runs
// against the original scope text — offsets must index the untrimmed source.
func (o *Orchestrator) runChain(ctx context.Context, scope *types.SpeakerScope, allSpeakers []string) (types.Persona, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.speaker")
	defer span.End()

	// Cleaning.
	cleaned := o.timed(ctx, "cleaning", func() string {
		text := segment.StripForeignLines(scope.Text, scope.Speaker, allSpeakers)
		if o.cleaner != nil {
			cleanScope := *scope
			cleanScope.Text = text
			text = o.cleaner.Clean(ctx, cleanScope)
		}
		return text
	})

	// Extracting.
	stageStart := time.Now()
	bag, err := o.extractor.Extract(ctx, *scope, cleaned)
	o.metrics.RecordStage(ctx, "extracting", time.Since(stageStart).Seconds())
	if err != nil {
		return types.Persona{}, err
	}

	// Linking and filtering.
	stageStart = time.Now()
	linked := map[string][]types.EvidenceItem{
		assemble.FieldDemographics: o.linker.Link(scope, bag.Demographics.Evidence),
		assemble.FieldGoals:        o.linker.Link(scope, bag.Goals.Evidence),
		assemble.FieldChallenges:   o.linker.Link(scope, bag.Challenges.Evidence),
		assemble.FieldKeyQuotes:    o.linker.Link(scope, bag.KeyQuotes),
	}
	for field, items := range linked {
		valid := items[:0]
		for _, it := range items {
			if evidence.Valid(it) {
				valid = append(valid, it)
			}
		}
		linked[field] = valid
	}
	o.metrics.RecordStage(ctx, "linking", time.Since(stageStart).Seconds())

	// Assembling, plus the evidence safety net.
	stageStart = time.Now()
	persona := o.assembler.Assemble(scope, bag, linked)
	evidence.ScrubPersona(&persona)
	o.metrics.RecordStage(ctx, "assembling", time.Since(stageStart).Seconds())

	return persona, nil
}

// timed runs fn and records its duration under the given stage label.
func (o *Orchestrator) timed(ctx context.Context, stage string, fn func() string) string {
	start := time.Now()
	out := fn()
	o.metrics.RecordStage(ctx, stage, time.Since(start).Seconds())
	return out
}

// publish sends ev to the sink; sink failures are logged and swallowed.
func (o *Orchestrator) publish(ctx context.Context, ev event.Event) {
	ev.Timestamp = time.Now().UTC()
	if err := o.sink.Publish(ctx, ev); err != nil {
		o.logger.Warn("event publish failed", "type", ev.Type, "error", err)
	}
}
