// Package assemble builds the final persona record from a raw attribute bag
// and its linked evidence.
//
// Assembly is where the output contract is enforced: demographics always
// decompose into the structured schema, key quotes are always populated when
// any usable quote exists, evidence is deduplicated, and confidences are
// reconciled. Assembly never fails — malformed input degrades to emptier
// fields, not to an error.
package assemble

import (
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/personaforge/internal/extract"
	"github.com/MrWong99/personaforge/pkg/types"
)

// Field keys shared between the orchestrator's linking step and assembly.
// They double as the keys of the diagnostic evidence map.
const (
	FieldDemographics = "demographics"
	FieldGoals        = "goals_and_motivations"
	FieldChallenges   = "challenges_and_frustrations"
	FieldKeyQuotes    = "key_quotes"
)

const defaultMaxKeyQuotes = 7

// SourceExtraction tags personas produced by the normal extraction chain.
const SourceExtraction = "attribute_extraction"

// Option is a functional option for configuring an [Assembler].
type Option func(*Assembler)

// WithMaxKeyQuotes caps how many quotes the key-quote harvest collects.
// Default: 7.
func WithMaxKeyQuotes(n int) Option {
	return func(a *Assembler) {
		a.maxKeyQuotes = n
	}
}

// Assembler builds personas. Safe for concurrent use — read-only after
// construction.
type Assembler struct {
	maxKeyQuotes int
}

// New returns an [Assembler] configured with the supplied options.
func New(opts ...Option) *Assembler {
	a := &Assembler{maxKeyQuotes: defaultMaxKeyQuotes}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble builds the persona for one speaker from the extracted bag and the
// per-field linked evidence (keyed by the Field* constants).
func (a *Assembler) Assemble(scope *types.SpeakerScope, bag *extract.AttributeBag, linked map[string][]types.EvidenceItem) types.Persona {
	for k, items := range linked {
		linked[k] = DedupEvidence(items)
	}

	p := types.Persona{
		ID:          uuid.NewString(),
		Name:        bag.Name,
		Description: bag.Description,
		Archetype:   bag.Archetype,

		Demographics: ParseDemographics(bag.Demographics.Value, bag.Demographics.Confidence, linked[FieldDemographics]),

		GoalsAndMotivations: types.AttributedField{
			Value:    bag.Goals.Value,
			Evidence: linked[FieldGoals],
		},
		ChallengesAndFrustrations: types.AttributedField{
			Value:    bag.Challenges.Value,
			Evidence: linked[FieldChallenges],
		},

		Patterns: dedupStrings(bag.Patterns),

		Metadata: types.PersonaMetadata{
			Source:      SourceExtraction,
			DocumentID:  primaryDocument(scope, linked),
			EvidenceMap: linked,
		},
	}
	if p.Name == "" {
		p.Name = scope.Speaker
	}

	p.KeyQuotes = a.buildKeyQuotes(linked)
	p.OverallConfidence = overallConfidence(bag)

	fixUpGoldenSchema(&p)
	return p
}

// buildKeyQuotes assembles the key-quote field. The extractor's own quotes
// come first; when it supplied none, up to maxKeyQuotes quotes are harvested
// from evidence already linked on the other fields so the field is populated
// whenever any usable quote exists anywhere.
func (a *Assembler) buildKeyQuotes(linked map[string][]types.EvidenceItem) types.AttributedField {
	quotes := linked[FieldKeyQuotes]
	if len(quotes) == 0 {
		for _, field := range []string{FieldGoals, FieldChallenges, FieldDemographics} {
			quotes = append(quotes, linked[field]...)
		}
	}
	quotes = DedupEvidence(quotes)
	if len(quotes) > a.maxKeyQuotes {
		quotes = quotes[:a.maxKeyQuotes]
	}

	f := types.AttributedField{Evidence: quotes}
	// The value must summarise whenever evidence exists.
	if len(quotes) > 0 {
		f.Value = quotes[0].Quote
	}
	return f
}

// overallConfidence adopts the extractor's explicit score when present,
// otherwise averages the non-zero per-field confidences.
func overallConfidence(bag *extract.AttributeBag) float64 {
	if bag.Confidence > 0 {
		return bag.Confidence
	}
	var sum float64
	var n int
	for _, c := range []float64{bag.Demographics.Confidence, bag.Goals.Confidence, bag.Challenges.Confidence} {
		if c > 0 {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// primaryDocument picks the document most of the linked evidence resolves
// to, falling back to the scope's first span when nothing is linked.
func primaryDocument(scope *types.SpeakerScope, linked map[string][]types.EvidenceItem) string {
	counts := make(map[string]int)
	for _, items := range linked {
		for _, it := range items {
			if it.DocumentID != "" {
				counts[it.DocumentID]++
			}
		}
	}
	best, bestN := "", 0
	for doc, n := range counts {
		if n > bestN || (n == bestN && doc < best) {
			best, bestN = doc, n
		}
	}
	if best != "" {
		return best
	}
	if len(scope.DocSpans) > 0 {
		return scope.DocSpans[0].DocumentID
	}
	return ""
}

// DedupEvidence removes repeated evidence items using exact post-trim quote
// equality, keeping the first occurrence. Idempotent: applying it twice
// yields the same result as applying it once.
func DedupEvidence(items []types.EvidenceItem) []types.EvidenceItem {
	if len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]types.EvidenceItem, 0, len(items))
	for _, it := range items {
		key := strings.TrimSpace(it.Quote)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.TrimSpace(s)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// fixUpGoldenSchema is the final, non-destructive validation pass: required
// fields get safe defaults and confidences are clamped into range. It never
// rejects a persona.
func fixUpGoldenSchema(p *types.Persona) {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "Participant"
	}
	if p.OverallConfidence < 0 {
		p.OverallConfidence = 0
	}
	if p.OverallConfidence > 1 {
		p.OverallConfidence = 1
	}
	if p.Demographics.Confidence < 0 {
		p.Demographics.Confidence = 0
	}
	if p.Demographics.Confidence > 1 {
		p.Demographics.Confidence = 1
	}
	if p.KeyQuotes.Value == "" && len(p.KeyQuotes.Evidence) > 0 {
		p.KeyQuotes.Value = p.KeyQuotes.Evidence[0].Quote
	}
	if p.Metadata.Source == "" {
		p.Metadata.Source = SourceExtraction
	}
}
