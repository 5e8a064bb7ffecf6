package assemble

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/MrWong99/personaforge/pkg/types"
)

// SourceFallback tags personas synthesized after the extraction chain failed.
const SourceFallback = "fallback_persona"

const (
	fallbackOverallConfidence = 0.3
	fallbackTraitConfidence   = 0.6
)

// Synthesize produces the minimally populated, clearly flagged persona used
// when the normal chain fails for a speaker. The prose is role-appropriate:
// interviewers get facilitator framing, everyone else generic participant
// framing. Per-trait confidence is fixed at 0.6 and the overall confidence
// at 0.3, low enough that downstream consumers can filter fallbacks out by
// score alone even if they ignore the metadata flag.
func Synthesize(role types.Role, nameHint string) types.Persona {
	name := nameHint
	if name == "" {
		name = "Participant"
	}

	var description, archetype, goals, challenges string
	if role == types.RoleInterviewer {
		description = fmt.Sprintf("%s conducted this session. Their own attributes could not be extracted from the transcript.", name)
		archetype = "The Facilitator"
		goals = "Guide the conversation and surface the participant's experiences."
		challenges = "Not enough self-disclosure in the transcript to identify personal challenges."
	} else {
		description = fmt.Sprintf("%s took part in this session. Detailed attributes could not be extracted from the transcript.", name)
		archetype = "The Participant"
		goals = "Insufficient data to determine specific goals and motivations."
		challenges = "Insufficient data to determine specific challenges and frustrations."
	}

	trait := func(value string) types.AttributedField {
		return types.AttributedField{Value: value}
	}

	p := types.Persona{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Archetype:   archetype,

		Demographics: types.StructuredDemographics{
			ProfessionalContext: trait("Unknown — extraction did not complete for this speaker."),
			Confidence:          fallbackTraitConfidence,
		},

		GoalsAndMotivations:       trait(goals),
		ChallengesAndFrustrations: trait(challenges),
		KeyQuotes:                 types.AttributedField{},

		OverallConfidence: fallbackOverallConfidence,

		Metadata: types.PersonaMetadata{
			Source:     SourceFallback,
			IsFallback: true,
		},
	}
	fixUpGoldenSchema(&p)
	return p
}
