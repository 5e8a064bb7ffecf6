package evidence

import (
	"regexp"
	"strings"

	"github.com/MrWong99/personaforge/pkg/types"
)

// roleLabelPrefixRe matches quotes the model lifted with the speaker label
// still attached ("Interviewer: So what happened?").
var roleLabelPrefixRe = regexp.MustCompile(`(?i)^(interviewer|interviewee|researcher|moderator|facilitator|participant|q|a)\s*:`)

// headerQuoteRe matches analysis-section headers the model sometimes quotes
// back instead of speech ("Key Insights:", "Summary:", "Takeaways:").
var headerQuoteRe = regexp.MustCompile(`(?i)^(key insights?|summary|takeaways?|notes?|action items?)\s*:?\s*$`)

// CleanQuote reports whether a candidate quote is worth linking at all.
// Interviewer questions, label-prefixed lines, and section headers are
// transcript plumbing, not evidence of who the speaker is.
func CleanQuote(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return false
	}
	if strings.HasSuffix(q, "?") {
		return false
	}
	if roleLabelPrefixRe.MatchString(q) {
		return false
	}
	if headerQuoteRe.MatchString(q) {
		return false
	}
	return true
}

// Valid reports whether an evidence item meets the high-trust contract:
// both character offsets present and a usable speaker attribution. Items
// attributed to "Researcher" are never valid — that label marks the study's
// own analyst, whose words must not support a participant persona.
func Valid(item types.EvidenceItem) bool {
	if !item.Linked() {
		return false
	}
	sp := strings.TrimSpace(item.Speaker)
	if sp == "" || strings.EqualFold(sp, "Researcher") {
		return false
	}
	return true
}

// keepValid filters a field's evidence down to items passing [Valid],
// in place semantics on a copy.
func keepValid(f types.AttributedField) types.AttributedField {
	if len(f.Evidence) == 0 {
		return f
	}
	kept := make([]types.EvidenceItem, 0, len(f.Evidence))
	for _, e := range f.Evidence {
		if Valid(e) {
			kept = append(kept, e)
		}
	}
	f.Evidence = kept
	return f
}

// ScrubPersona is the safety net that runs after assembly: it removes every
// evidence item that fails [Valid] from all attributed fields and from the
// diagnostic evidence map. No persona ever leaves the pipeline carrying
// unlinked or misattributed evidence in a high-trust position.
func ScrubPersona(p *types.Persona) {
	p.GoalsAndMotivations = keepValid(p.GoalsAndMotivations)
	p.ChallengesAndFrustrations = keepValid(p.ChallengesAndFrustrations)
	p.KeyQuotes = keepValid(p.KeyQuotes)

	d := &p.Demographics
	d.ExperienceLevel = keepValid(d.ExperienceLevel)
	d.Industry = keepValid(d.Industry)
	d.Location = keepValid(d.Location)
	d.ProfessionalContext = keepValid(d.ProfessionalContext)
	d.Roles = keepValid(d.Roles)
	d.AgeRange = keepValid(d.AgeRange)

	for field, items := range p.Metadata.EvidenceMap {
		kept := make([]types.EvidenceItem, 0, len(items))
		for _, e := range items {
			if Valid(e) {
				kept = append(kept, e)
			}
		}
		p.Metadata.EvidenceMap[field] = kept
	}
}
