// Package segment splits raw interview transcripts into speaker-tagged
// segments and derives the per-speaker scopes that drive attribute
// extraction.
//
// The segmenter handles the transcript shapes that interview tooling
// actually produces: speaker-labelled dialogue ("Sarah: I'm a PM"),
// timestamp noise, and several interviews concatenated into one file with
// header lines between them. Role inference (interviewer vs. interviewee)
// runs after splitting — see roles.go for the heuristics.
//
// Segments are immutable once produced. All exported types are safe for
// concurrent use — the Segmenter is read-only after construction.
package segment

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/personaforge/pkg/types"
)

// ErrEmptyTranscript is returned when the input contains no usable text at
// all. This is the only input condition the pipeline treats as a hard
// failure.
var ErrEmptyTranscript = errors.New("segment: transcript is empty")

const (
	defaultMinDialogueLen = 3
	maxSpeakerLabelLen    = 40
)

var (
	// speakerLineRe matches "Label: text" anchored at line start. The label
	// is capped in length so sentence fragments containing a colon deep in
	// the line are not mistaken for speakers.
	speakerLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 ._'-]{0,39}):\s*(.*)$`)

	// headerLineRe matches block headers that separate concatenated
	// interviews, e.g. "=== Interview with Alex ===", "--- Session (Jordan)".
	// The body deliberately excludes colons so dialogue lines such as
	// "Interviewer: How long?" never match.
	headerLineRe = regexp.MustCompile(`(?i)^[=\-#*\s]*((?:interview|session|transcript|participant)\b[^:\n]*?)[=\-#*\s]*$`)

	// headerLabelRe matches "Interview 2: Jordan" style headers where the
	// keyword itself sits in speaker-label position.
	headerLabelRe = regexp.MustCompile(`(?i)^(?:interview|session|transcript)\s*#?\d*$`)

	// parentheticalRe extracts "(Alex)" from a header line.
	parentheticalRe = regexp.MustCompile(`\(([^)]+)\)`)

	// headerNameRe extracts the participant name after "with" in a header.
	headerNameRe = regexp.MustCompile(`(?i)\bwith\s+([A-Za-z][\w .'-]*)`)

	// timestampOnlyRe matches lines that carry nothing but a timestamp.
	timestampOnlyRe = regexp.MustCompile(`^[\[(]?\d{1,2}:\d{2}(?::\d{2})?[\])]?$`)

	// leadingTimestampRe strips inline timestamps from the front of an
	// utterance ("[00:12] Sarah: ..." or "(1:02:03) ...").
	leadingTimestampRe = regexp.MustCompile(`^[\[(]\d{1,2}:\d{2}(?::\d{2})?[\])]\s*`)

	slugRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// Option is a functional option for configuring a [Segmenter].
type Option func(*Segmenter)

// WithMinDialogueLength sets the minimum number of characters an utterance
// must carry to survive the noise filter. The default of 3 is an empirical
// constant — tune it against a labelled corpus rather than trusting it.
func WithMinDialogueLength(n int) Option {
	return func(s *Segmenter) {
		s.minDialogueLen = n
	}
}

// Segmenter splits raw transcript text into [types.TranscriptSegment]
// values. Safe for concurrent use — read-only after construction.
type Segmenter struct {
	minDialogueLen int
}

// New returns a [Segmenter] configured with the supplied options.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		minDialogueLen: defaultMinDialogueLen,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Segment splits raw into speaker-tagged segments with inferred roles.
//
// The algorithm:
//
//  1. Walk the input line by line, opening a new document at every block
//     header and a new segment at every "Label: text" line.
//  2. Unmatched lines continue the current segment's dialogue; timestamp
//     noise is dropped.
//  3. Segments shorter than the minimum dialogue length are discarded.
//  4. Roles are inferred per document (see [InferRoles]).
//
// When no speaker pattern matches anywhere, a single synthetic segment
// covering the whole text is returned, attributed to
// [types.RoleParticipant].
//
// Returns [ErrEmptyTranscript] when raw contains only whitespace.
func (s *Segmenter) Segment(raw string) ([]types.TranscriptSegment, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyTranscript
	}

	docID := "doc-1"
	docCount := 1
	sawHeader := false

	var segments []types.TranscriptSegment
	var current *types.TranscriptSegment

	flush := func() {
		if current == nil {
			return
		}
		current.DialogueText = strings.TrimSpace(current.DialogueText)
		if len(current.DialogueText) >= s.minDialogueLen {
			segments = append(segments, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if timestampOnlyRe.MatchString(trimmed) {
			continue
		}
		trimmed = leadingTimestampRe.ReplaceAllString(trimmed, "")

		if name, ok := matchHeader(trimmed); ok {
			flush()
			// The first header of the file replaces the implicit doc-1
			// rather than opening doc-2 on top of an empty block.
			if sawHeader || len(segments) > 0 {
				docCount++
			}
			sawHeader = true
			docID = documentID(name, docCount)
			continue
		}

		if m := speakerLineRe.FindStringSubmatch(trimmed); m != nil && validLabel(m[1]) {
			flush()
			current = &types.TranscriptSegment{
				DocumentID:   docID,
				SpeakerID:    normalizeLabel(m[1]),
				Role:         types.RoleParticipant,
				DialogueText: m[2],
				Ordinal:      len(segments),
			}
			continue
		}

		// Continuation of the current utterance.
		if current != nil {
			current.DialogueText += "\n" + trimmed
		}
	}
	flush()

	if len(segments) == 0 {
		// No speaker pattern matched at all: one synthetic segment
		// covering the whole text.
		return []types.TranscriptSegment{{
			DocumentID:   "doc-1",
			SpeakerID:    "Participant",
			Role:         types.RoleParticipant,
			DialogueText: strings.TrimSpace(raw),
			Ordinal:      0,
		}}, nil
	}

	return InferRoles(segments), nil
}

// Record is a pre-segmented input turn, accepted as an alternative to raw
// text for callers that already ran their own diarization.
type Record struct {
	Speaker    string `json:"speaker"`
	Text       string `json:"text"`
	DocumentID string `json:"document_id,omitempty"`
}

// FromRecords converts pre-segmented records into segments, applying the
// same noise filtering and role inference as [Segmenter.Segment]. Records
// without a document id share the default document.
func (s *Segmenter) FromRecords(records []Record) ([]types.TranscriptSegment, error) {
	var segments []types.TranscriptSegment
	for _, r := range records {
		text := strings.TrimSpace(r.Text)
		speaker := normalizeLabel(r.Speaker)
		if speaker == "" || len(text) < s.minDialogueLen {
			continue
		}
		docID := r.DocumentID
		if docID == "" {
			docID = "doc-1"
		}
		segments = append(segments, types.TranscriptSegment{
			DocumentID:   docID,
			SpeakerID:    speaker,
			Role:         types.RoleParticipant,
			DialogueText: text,
			Ordinal:      len(segments),
		})
	}
	if len(segments) == 0 {
		return nil, ErrEmptyTranscript
	}
	return InferRoles(segments), nil
}

// matchHeader reports whether line is an interview block header and returns
// the participant name embedded in it, when present.
func matchHeader(line string) (name string, ok bool) {
	// "Interview 2: Jordan" — keyword in label position.
	if m := speakerLineRe.FindStringSubmatch(line); m != nil && headerLabelRe.MatchString(strings.TrimSpace(m[1])) {
		return strings.TrimSpace(m[2]), true
	}

	m := headerLineRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	body := m[1]
	if p := parentheticalRe.FindStringSubmatch(body); p != nil {
		return strings.TrimSpace(p[1]), true
	}
	if w := headerNameRe.FindStringSubmatch(body); w != nil {
		return strings.TrimSpace(w[1]), true
	}
	return "", true
}

// documentID derives a stable document id from a header name, falling back
// to a positional id when the header carries no name.
func documentID(name string, ordinal int) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fmt.Sprintf("doc-%d", ordinal)
	}
	return slug
}

// validLabel filters out matches that are clearly not speaker labels:
// bare numbers, URLs, and over-long sentence fragments.
func validLabel(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" || len(label) > maxSpeakerLabelLen {
		return false
	}
	if strings.Contains(strings.ToLower(label), "http") {
		return false
	}
	// A speaker label is at most a few words.
	if len(strings.Fields(label)) > 4 {
		return false
	}
	hasLetter := false
	for _, r := range label {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			hasLetter = true
			break
		}
	}
	return hasLetter
}

// normalizeLabel canonicalises a speaker label: collapse whitespace, trim
// trailing punctuation left by sloppy tooling.
func normalizeLabel(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	return strings.Trim(label, " .-_")
}

// BuildScopes groups segments by resolved speaker identity and concatenates
// each speaker's dialogue in original order. Document boundaries inside the
// concatenated text are preserved as [types.DocSpan] ranges so evidence
// located later can be attributed to the right document.
//
// Scope order follows first appearance in segments.
func BuildScopes(segments []types.TranscriptSegment) []types.SpeakerScope {
	index := make(map[string]int)
	var scopes []types.SpeakerScope

	for _, seg := range segments {
		key := strings.ToLower(seg.SpeakerID)
		i, ok := index[key]
		if !ok {
			i = len(scopes)
			index[key] = i
			scopes = append(scopes, types.SpeakerScope{
				Speaker: seg.SpeakerID,
				Role:    seg.Role,
			})
		}
		sc := &scopes[i]

		start := len(sc.Text)
		if start > 0 {
			sc.Text += "\n"
			start++
		}
		sc.Text += seg.DialogueText
		end := len(sc.Text)

		// Extend the previous span when the segment continues the same
		// document; otherwise open a new span.
		if n := len(sc.DocSpans); n > 0 && sc.DocSpans[n-1].DocumentID == seg.DocumentID {
			sc.DocSpans[n-1].End = end
		} else {
			sc.DocSpans = append(sc.DocSpans, types.DocSpan{
				DocumentID: seg.DocumentID,
				Start:      start,
				End:        end,
			})
		}
		sc.Segments = append(sc.Segments, seg)
	}

	return scopes
}

// StripForeignLines removes lines from text that are attributable to a
// speaker other than self. Merged-transcript tooling sometimes folds both
// sides of a dialogue under one label; this keeps cross-talk out of the
// extraction scope.
func StripForeignLines(text, self string, speakers []string) string {
	foreign := make(map[string]struct{}, len(speakers))
	for _, sp := range speakers {
		if !strings.EqualFold(sp, self) {
			foreign[strings.ToLower(sp)] = struct{}{}
		}
	}
	if len(foreign) == 0 {
		return text
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if m := speakerLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if _, isForeign := foreign[strings.ToLower(normalizeLabel(m[1]))]; isForeign {
				continue
			}
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
