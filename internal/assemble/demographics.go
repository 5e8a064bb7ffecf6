package assemble

import (
	"regexp"
	"strings"

	"github.com/MrWong99/personaforge/pkg/types"
)

// fieldExtractor maps "Key: Value" fragments (and, failing that, free-text
// keyword hits) onto one slot of the structured demographic schema. The
// extractors run in a fixed order; the first one claiming a fragment wins.
type fieldExtractor struct {
	// aliases are lowercase key names the extractor claims in "Key: Value"
	// fragments. Matching is substring-based so "Experience Level" and
	// "Years of experience" both land on the experience extractor.
	aliases []string

	// keyword, when non-nil, extracts a value from free text in the
	// heuristic fallback pass.
	keyword *regexp.Regexp

	// assign writes the extracted field into the target slot.
	assign func(d *types.StructuredDemographics, f types.AttributedField)
}

var fieldExtractors = []fieldExtractor{
	{
		aliases: []string{"experience", "seniority"},
		keyword: regexp.MustCompile(`(?i)\b(senior|junior|mid[- ]level|entry[- ]level|principal|staff|lead|\d+\+?\s*years(?:\s+of\s+experience)?)\b`),
		assign:  func(d *types.StructuredDemographics, f types.AttributedField) { d.ExperienceLevel = f },
	},
	{
		aliases: []string{"industry", "sector", "domain"},
		keyword: regexp.MustCompile(`(?i)\b(saas|software|fintech|finance|healthcare|health ?tech|e-?commerce|retail|education|manufacturing|logistics|insurance|gaming|media|telecom)\b`),
		assign:  func(d *types.StructuredDemographics, f types.AttributedField) { d.Industry = f },
	},
	{
		aliases: []string{"location", "based", "city", "country", "region"},
		keyword: regexp.MustCompile(`(?i)\b(?:based|located|living)\s+in\s+([A-Z][A-Za-z .'-]+)`),
		assign:  func(d *types.StructuredDemographics, f types.AttributedField) { d.Location = f },
	},
	{
		aliases: []string{"age"},
		keyword: regexp.MustCompile(`(?i)\b(\d{2}\s*-\s*\d{2}|(?:early|mid|late)\s+\d{2}s|\d{2}s|\d{2}\s+years\s+old)\b`),
		assign:  func(d *types.StructuredDemographics, f types.AttributedField) { d.AgeRange = f },
	},
	{
		aliases: []string{"role", "title", "position", "occupation", "job"},
		keyword: regexp.MustCompile(`(?i)\b((?:product|project|program|engineering|marketing|sales|data|design|account)?\s*(?:manager|engineer|developer|designer|director|researcher|analyst|founder|consultant|architect|scientist))\b`),
		assign:  func(d *types.StructuredDemographics, f types.AttributedField) { d.Roles = f },
	},
}

// ParseDemographics decomposes the extractor's flat demographics blob into
// the structured schema.
//
// Explicit "Key: Value; Key: Value" fragments are parsed first. Only when
// that yields nothing do per-field keyword heuristics scan the whole blob.
// Fragments no extractor claims are retained verbatim under
// professional_context, so no extracted content is ever silently dropped.
// The shared evidence and the block confidence attach to every populated
// sub-field.
func ParseDemographics(value string, confidence float64, ev []types.EvidenceItem) types.StructuredDemographics {
	d := types.StructuredDemographics{Confidence: confidence}
	value = strings.TrimSpace(value)
	if value == "" {
		return d
	}

	var leftovers []string
	structured := false

	for _, frag := range strings.Split(value, ";") {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		key, val, ok := strings.Cut(frag, ":")
		if !ok {
			leftovers = append(leftovers, frag)
			continue
		}
		val = strings.TrimSpace(val)
		ex := claimingExtractor(strings.TrimSpace(key))
		if ex == nil || val == "" {
			leftovers = append(leftovers, frag)
			continue
		}
		ex.assign(&d, types.AttributedField{Value: val, Evidence: ev})
		structured = true
	}

	if !structured {
		// No explicit keys anywhere: fall back to keyword heuristics over
		// the whole blob.
		for i := range fieldExtractors {
			ex := &fieldExtractors[i]
			if ex.keyword == nil {
				continue
			}
			m := ex.keyword.FindStringSubmatch(value)
			if m == nil {
				continue
			}
			hit := m[len(m)-1]
			ex.assign(&d, types.AttributedField{Value: strings.TrimSpace(hit), Evidence: ev})
		}
	}

	if len(leftovers) > 0 && d.ProfessionalContext.IsZero() {
		d.ProfessionalContext = types.AttributedField{
			Value:    strings.Join(leftovers, "; "),
			Evidence: ev,
		}
	}
	return d
}

// claimingExtractor returns the first extractor whose alias matches key, or
// nil when no extractor claims it.
func claimingExtractor(key string) *fieldExtractor {
	key = strings.ToLower(key)
	for i := range fieldExtractors {
		for _, alias := range fieldExtractors[i].aliases {
			if key == alias || strings.Contains(key, alias) {
				return &fieldExtractors[i]
			}
		}
	}
	return nil
}
