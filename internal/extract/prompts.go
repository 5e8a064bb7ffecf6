package extract

import (
	"fmt"
	"strings"

	"github.com/MrWong99/personaforge/pkg/types"
)

// promptOverheadTokens is a rough allowance for the system prompt and the
// instruction scaffolding around the transcript text.
const promptOverheadTokens = 900

const systemPrompt = `You are an expert user researcher. You analyse interview transcripts and produce structured persona attributes as JSON.

Rules:
- Respond with a single JSON object and nothing else. No markdown fences, no commentary.
- Every "evidence" entry must be a VERBATIM quote copied exactly from the transcript, not a paraphrase.
- Confidence values are numbers between 0.0 and 1.0.
- If the transcript gives no signal for a field, use an empty string or empty array; never invent facts.`

const responseSchema = `{
  "name": "display name for this person",
  "description": "2-3 sentence summary of who they are",
  "archetype": "short archetype label, e.g. 'The Pragmatic Builder'",
  "demographics": {
    "value": "semicolon-separated summary, e.g. 'Experience: Senior; Industry: SaaS; Location: Berlin; Roles: Product Manager'",
    "confidence": 0.0,
    "evidence": ["verbatim quote", "..."]
  },
  "goals_and_motivations": {"value": "...", "confidence": 0.0, "evidence": ["..."]},
  "challenges_and_frustrations": {"value": "...", "confidence": 0.0, "evidence": ["..."]},
  "key_quotes": ["verbatim quote", "..."],
  "patterns": ["recurring theme", "..."],
  "confidence": 0.0
}`

// buildUserPrompt assembles the extraction prompt for one speaker. The
// framing differs by role: interviewees get the full persona treatment,
// interviewers are profiled from how they run the session since they rarely
// talk about themselves.
func buildUserPrompt(speaker string, role types.Role, text string) string {
	var b strings.Builder

	switch role {
	case types.RoleInterviewer:
		fmt.Fprintf(&b, "The speaker %q is the INTERVIEWER in this transcript. ", speaker)
		b.WriteString("Build their profile from how they conduct the session: what they probe for, their domain fluency, their facilitation style. ")
		b.WriteString("Do not attribute the interviewee's goals or frustrations to them.\n\n")
	default:
		fmt.Fprintf(&b, "The speaker %q is the research participant in this transcript. ", speaker)
		b.WriteString("Extract their persona attributes: who they are, what they want, what blocks them.\n\n")
	}

	b.WriteString("Respond with JSON matching exactly this shape:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n\nTranscript (only this speaker's dialogue):\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"")
	return b.String()
}
