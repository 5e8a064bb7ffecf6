package segment

import (
	"regexp"
	"strings"

	"github.com/MrWong99/personaforge/pkg/types"
)

// interviewerLabelRe matches speaker labels that explicitly name the
// questioning side. These short-circuit the statistical inference.
var interviewerLabelRe = regexp.MustCompile(`(?i)^(interviewer|researcher|moderator|facilitator|q)$`)

// speakerStats aggregates the linguistic signals role inference runs on.
type speakerStats struct {
	speaker    string
	utterances int
	questions  int
	totalChars int
}

func (s speakerStats) questionRatio() float64 {
	if s.utterances == 0 {
		return 0
	}
	return float64(s.questions) / float64(s.utterances)
}

func (s speakerStats) avgLength() float64 {
	if s.utterances == 0 {
		return 0
	}
	return float64(s.totalChars) / float64(s.utterances)
}

// InferRoles assigns a role to every segment, working per document.
//
// Explicitly named interviewer labels ("Interviewer", "Researcher", ...) are
// honoured first. Otherwise the speaker with the highest question-mark ratio
// is labelled [types.RoleInterviewer], with shortest average utterance
// length as the tie-break; all other speakers become
// [types.RoleInterviewee].
//
// Exception: a document with only one distinct speaker label is never given
// an interviewer — merged-transcript tooling often collapses both sides of a
// dialogue under one label, so a lone speaker defaults to
// [types.RoleInterviewee] regardless of question ratio. Synthetic
// participant segments keep [types.RoleParticipant].
func InferRoles(segments []types.TranscriptSegment) []types.TranscriptSegment {
	byDoc := make(map[string][]int)
	for i, seg := range segments {
		byDoc[seg.DocumentID] = append(byDoc[seg.DocumentID], i)
	}

	out := make([]types.TranscriptSegment, len(segments))
	copy(out, segments)

	for _, idxs := range byDoc {
		stats := collectStats(out, idxs)

		if len(stats) == 1 {
			// Single-speaker document: never an interviewer.
			for _, i := range idxs {
				out[i].Role = types.RoleInterviewee
			}
			continue
		}

		interviewer := pickInterviewer(stats)
		for _, i := range idxs {
			if strings.EqualFold(out[i].SpeakerID, interviewer) && interviewer != "" {
				out[i].Role = types.RoleInterviewer
			} else {
				out[i].Role = types.RoleInterviewee
			}
		}
	}

	return out
}

// collectStats builds per-speaker statistics for one document's segments.
// The returned slice preserves first-appearance order.
func collectStats(segments []types.TranscriptSegment, idxs []int) []speakerStats {
	order := make(map[string]int)
	var stats []speakerStats

	for _, i := range idxs {
		seg := segments[i]
		key := strings.ToLower(seg.SpeakerID)
		pos, ok := order[key]
		if !ok {
			pos = len(stats)
			order[key] = pos
			stats = append(stats, speakerStats{speaker: seg.SpeakerID})
		}
		st := &stats[pos]
		st.utterances++
		st.totalChars += len(seg.DialogueText)
		if strings.Contains(seg.DialogueText, "?") {
			st.questions++
		}
	}
	return stats
}

// pickInterviewer selects the interviewer among two or more speakers.
// Explicit labels win; otherwise the highest question ratio, tie-broken by
// shortest average utterance. Returns "" when no speaker asks any question
// at all — a document without questions has no interviewer to find.
func pickInterviewer(stats []speakerStats) string {
	for _, st := range stats {
		if interviewerLabelRe.MatchString(st.speaker) {
			return st.speaker
		}
	}

	best := -1
	for i, st := range stats {
		if st.questionRatio() == 0 {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		br, sr := stats[best].questionRatio(), st.questionRatio()
		switch {
		case sr > br:
			best = i
		case sr == br && st.avgLength() < stats[best].avgLength():
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return stats[best].speaker
}
