// Package types defines the shared data model used across all PersonaForge
// packages.
//
// These types form the lingua franca between the segmenter, the extraction
// client, the evidence linker, and the assembler. They are intentionally
// minimal — each package defines its own internal working types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "strings"

// Role classifies a speaker's function within an interview document.
type Role string

const (
	// RoleInterviewer marks the speaker asking the questions.
	RoleInterviewer Role = "Interviewer"

	// RoleInterviewee marks the subject of the interview.
	RoleInterviewee Role = "Interviewee"

	// RoleParticipant is the neutral default when role inference has no
	// signal to work with (e.g., a transcript without speaker labels).
	RoleParticipant Role = "Participant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleInterviewer, RoleInterviewee, RoleParticipant:
		return true
	}
	return false
}

// TranscriptSegment is a single speaker turn produced by the segmenter.
// Segments are immutable once produced.
type TranscriptSegment struct {
	// DocumentID identifies the logical interview document this segment
	// belongs to. Multiple documents occur when several interviews are
	// concatenated into one input file.
	DocumentID string `json:"document_id"`

	// SpeakerID is the resolved speaker identity, normally the label found
	// at the start of the line (e.g., "Sarah" in "Sarah: I'm a PM").
	SpeakerID string `json:"speaker_id"`

	// Role is the inferred role of the speaker within the document.
	// Defaults to [RoleParticipant] unless inference assigns otherwise.
	Role Role `json:"role"`

	// DialogueText is the utterance content with the speaker label removed.
	// Never empty — empty or noise-only turns are discarded by the segmenter.
	DialogueText string `json:"dialogue_text"`

	// Ordinal is the zero-based position of this segment within the input.
	Ordinal int `json:"ordinal_position"`
}

// DocSpan records which character range of a [SpeakerScope]'s concatenated
// text originates from which document. Spans never overlap and are ordered.
type DocSpan struct {
	// DocumentID is the document the range belongs to.
	DocumentID string `json:"document_id"`

	// Start is the inclusive start offset into [SpeakerScope.Text].
	Start int `json:"start"`

	// End is the exclusive end offset into [SpeakerScope.Text].
	End int `json:"end"`
}

// SpeakerScope groups all dialogue attributed to one speaker, concatenated
// in original order. It is the unit of attribute extraction: one scope in,
// one persona out.
//
// Scopes are derived and transient — they are built per pipeline run and
// never persisted.
type SpeakerScope struct {
	// Speaker is the resolved speaker identity.
	Speaker string

	// Role is the role inferred for this speaker.
	Role Role

	// Text is the concatenation of the speaker's dialogue, separated by
	// newlines, in original segment order.
	Text string

	// DocSpans maps sub-ranges of Text back to their source documents so
	// that evidence located in Text can be attributed to the right document.
	DocSpans []DocSpan

	// Segments are the source segments the scope was built from, in order.
	Segments []TranscriptSegment
}

// DocumentFor returns the document id owning the character offset off within
// the scope's text, or "" when off falls outside every span.
func (s *SpeakerScope) DocumentFor(off int) string {
	for _, span := range s.DocSpans {
		if off >= span.Start && off < span.End {
			return span.DocumentID
		}
	}
	return ""
}

// EvidenceItem is a single verbatim quote supporting an attribute value,
// located (when possible) at an exact character span in the scoped source
// text.
type EvidenceItem struct {
	// Quote is the verbatim supporting text as produced by the extractor.
	Quote string `json:"quote"`

	// StartChar and EndChar are offsets into the original scoped text.
	// Both nil means the item is unlinked and must be excluded from
	// high-trust evidence sets.
	StartChar *int `json:"start_char,omitempty"`
	EndChar   *int `json:"end_char,omitempty"`

	// Speaker is the speaker the quote is attributed to.
	Speaker string `json:"speaker,omitempty"`

	// DocumentID is the document the located span falls in.
	DocumentID string `json:"document_id,omitempty"`

	// MatchScore is the fuzzy match score (0–100) recorded by the linker.
	// Diagnostic only.
	MatchScore float64 `json:"match_score,omitempty"`
}

// Linked reports whether the item carries both character offsets and can be
// traced back to the source text.
func (e EvidenceItem) Linked() bool {
	return e.StartChar != nil && e.EndChar != nil
}

// AttributedField pairs one attribute value (e.g., goals) with the verbatim
// evidence supporting it. Only evidence passing the linker's validity check
// is retained.
type AttributedField struct {
	Value    string         `json:"value"`
	Evidence []EvidenceItem `json:"evidence"`
}

// IsZero reports whether the field carries neither a value nor evidence.
func (f AttributedField) IsZero() bool {
	return strings.TrimSpace(f.Value) == "" && len(f.Evidence) == 0
}

// StructuredDemographics is the fixed demographic decomposition every persona
// must carry. It is deliberately never a single value/evidence pair: the six
// sub-fields plus the aggregate confidence are the contract ("Golden Schema")
// the assembler enforces on every code path.
type StructuredDemographics struct {
	ExperienceLevel     AttributedField `json:"experience_level"`
	Industry            AttributedField `json:"industry"`
	Location            AttributedField `json:"location"`
	ProfessionalContext AttributedField `json:"professional_context"`
	Roles               AttributedField `json:"roles"`
	AgeRange            AttributedField `json:"age_range"`

	// Confidence is the aggregate confidence for the demographic block.
	Confidence float64 `json:"confidence"`
}

// PersonaMetadata carries provenance and diagnostic information about how a
// persona was produced. It is intended for diagnostics, not business logic.
type PersonaMetadata struct {
	// Source names the producer: "attribute_extraction" for the normal
	// chain, "fallback_persona" for synthesized fallbacks.
	Source string `json:"source"`

	// IsFallback is true when the persona was synthesized after the normal
	// extraction chain failed for this speaker.
	IsFallback bool `json:"is_fallback"`

	// DocumentID is the primary document the persona's evidence resolves to.
	DocumentID string `json:"document_id,omitempty"`

	// EvidenceMap is the flattened field → located-evidence index recorded
	// during linking. Diagnostic only.
	EvidenceMap map[string][]EvidenceItem `json:"evidence_map,omitempty"`

	// QualityFlags lists non-fatal issues noticed by post-processing
	// (e.g., "low_confidence"). Never causes a persona to be dropped.
	QualityFlags []string `json:"quality_flags,omitempty"`
}

// Persona is the final record produced for each resolved speaker. It is
// mutated only during assembly and post-processing within a single run and
// never after being returned to the caller.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Archetype   string `json:"archetype"`

	Demographics StructuredDemographics `json:"demographics"`

	GoalsAndMotivations       AttributedField `json:"goals_and_motivations"`
	ChallengesAndFrustrations AttributedField `json:"challenges_and_frustrations"`
	KeyQuotes                 AttributedField `json:"key_quotes"`

	// OverallConfidence is the extractor's explicit score when supplied,
	// otherwise the mean of the non-zero per-field confidences.
	OverallConfidence float64 `json:"overall_confidence"`

	// Patterns lists recurring themes noticed across the speaker's dialogue.
	Patterns []string `json:"patterns,omitempty"`

	Metadata PersonaMetadata `json:"metadata"`
}

// SpeakerOutcome describes how one speaker's pipeline concluded.
type SpeakerOutcome string

const (
	// OutcomeSucceeded means the full extract → link → assemble chain ran.
	OutcomeSucceeded SpeakerOutcome = "succeeded"

	// OutcomeFallback means the chain failed and a fallback persona was
	// synthesized instead.
	OutcomeFallback SpeakerOutcome = "fallback"
)

// SpeakerStatus is the per-speaker entry of a [BatchResult] status summary.
type SpeakerStatus struct {
	Speaker string         `json:"speaker"`
	Outcome SpeakerOutcome `json:"outcome"`

	// Reason holds the failure description when Outcome is [OutcomeFallback].
	Reason string `json:"reason,omitempty"`
}

// BatchResult is the full output of one pipeline run: exactly one persona per
// detected speaker plus a diagnostic status summary. Persona order is not
// guaranteed to match input speaker order.
type BatchResult struct {
	Personas []Persona       `json:"personas"`
	Statuses []SpeakerStatus `json:"statuses"`
}
