package pipeline

import (
	"log/slog"
	"strings"

	"github.com/MrWong99/personaforge/internal/assemble"
	"github.com/MrWong99/personaforge/pkg/types"
)

// PostProcessOptions toggles the optional post-processing stages applied to
// the assembled persona list. All stages are fail-open: a panic inside one
// stage is contained and the personas pass through unmodified by that stage.
type PostProcessOptions struct {
	// QualityGate records non-fatal quality flags on weak personas. It never
	// drops a persona.
	QualityGate bool

	// KeywordHighlight promotes recurring words from linked quotes into the
	// persona's pattern list.
	KeywordHighlight bool

	// ReformatTraits normalises trait prose (whitespace, terminal
	// punctuation).
	ReformatTraits bool

	// Dedup re-runs evidence deduplication across every attributed field.
	Dedup bool
}

// lowConfidenceFloor is the overall confidence below which the quality gate
// flags a persona.
const lowConfidenceFloor = 0.5

// PostProcess applies the enabled stages to personas in place.
func PostProcess(personas []types.Persona, opts PostProcessOptions, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	run := func(name string, enabled bool, fn func(p *types.Persona)) {
		if !enabled {
			return
		}
		for i := range personas {
			applyStage(name, &personas[i], fn, logger)
		}
	}

	run("quality_gate", opts.QualityGate, qualityGate)
	run("keyword_highlight", opts.KeywordHighlight, keywordHighlight)
	run("reformat_traits", opts.ReformatTraits, reformatTraits)
	run("dedup", opts.Dedup, dedupFields)
}

// applyStage contains a single stage invocation; a panic degrades to a
// warning instead of killing the batch.
func applyStage(name string, p *types.Persona, fn func(*types.Persona), logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("post-processing stage panicked, skipping persona",
				"stage", name, "persona", p.Name, "panic", r)
		}
	}()
	fn(p)
}

func qualityGate(p *types.Persona) {
	addFlag := func(flag string) {
		for _, f := range p.Metadata.QualityFlags {
			if f == flag {
				return
			}
		}
		p.Metadata.QualityFlags = append(p.Metadata.QualityFlags, flag)
	}

	if p.OverallConfidence < lowConfidenceFloor {
		addFlag("low_confidence")
	}
	if strings.TrimSpace(p.Description) == "" {
		addFlag("missing_description")
	}
	if len(p.KeyQuotes.Evidence) == 0 && !p.Metadata.IsFallback {
		addFlag("no_linked_quotes")
	}
}

// keywordHighlight surfaces words that recur across the persona's linked
// quotes as patterns. Crude by design: real theme detection belongs to the
// extractor, this just catches what it missed.
func keywordHighlight(p *types.Persona) {
	counts := make(map[string]int)
	for _, items := range [][]types.EvidenceItem{
		p.KeyQuotes.Evidence,
		p.GoalsAndMotivations.Evidence,
		p.ChallengesAndFrustrations.Evidence,
	} {
		for _, it := range items {
			for _, w := range strings.Fields(strings.ToLower(it.Quote)) {
				w = strings.Trim(w, ".,!?;:'\"")
				if len(w) >= 5 {
					counts[w]++
				}
			}
		}
	}

	existing := make(map[string]struct{}, len(p.Patterns))
	for _, pat := range p.Patterns {
		existing[strings.ToLower(pat)] = struct{}{}
	}
	for w, n := range counts {
		if n < 3 {
			continue
		}
		if _, dup := existing[w]; dup {
			continue
		}
		p.Patterns = append(p.Patterns, w)
	}
}

func reformatTraits(p *types.Persona) {
	for _, f := range []*types.AttributedField{
		&p.GoalsAndMotivations,
		&p.ChallengesAndFrustrations,
		&p.Demographics.ProfessionalContext,
	} {
		f.Value = reformatProse(f.Value)
	}
	p.Description = reformatProse(p.Description)
}

// reformatProse collapses whitespace and ensures terminal punctuation.
func reformatProse(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
	default:
		s += "."
	}
	return s
}

func dedupFields(p *types.Persona) {
	p.GoalsAndMotivations.Evidence = assemble.DedupEvidence(p.GoalsAndMotivations.Evidence)
	p.ChallengesAndFrustrations.Evidence = assemble.DedupEvidence(p.ChallengesAndFrustrations.Evidence)
	p.KeyQuotes.Evidence = assemble.DedupEvidence(p.KeyQuotes.Evidence)

	d := &p.Demographics
	for _, f := range []*types.AttributedField{
		&d.ExperienceLevel, &d.Industry, &d.Location,
		&d.ProfessionalContext, &d.Roles, &d.AgeRange,
	} {
		f.Evidence = assemble.DedupEvidence(f.Evidence)
	}
}
