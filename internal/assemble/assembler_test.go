package assemble_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/MrWong99/personaforge/internal/assemble"
	"github.com/MrWong99/personaforge/internal/extract"
	"github.com/MrWong99/personaforge/pkg/types"
)

func linkedItem(quote, doc string) types.EvidenceItem {
	s, e := 0, len(quote)
	return types.EvidenceItem{Quote: quote, StartChar: &s, EndChar: &e, Speaker: "Sarah", DocumentID: doc, MatchScore: 100}
}

func testScope() *types.SpeakerScope {
	return &types.SpeakerScope{
		Speaker:  "Sarah",
		Role:     types.RoleInterviewee,
		Text:     "placeholder",
		DocSpans: []types.DocSpan{{DocumentID: "sarah", Start: 0, End: 11}},
	}
}

func TestAssemble_GoldenSchema(t *testing.T) {
	t.Parallel()

	bag := &extract.AttributeBag{
		Name:         "Sarah",
		Description:  "Senior PM.",
		Archetype:    "The Process Fixer",
		Demographics: extract.Field{Value: "Experience: Senior; Industry: SaaS; Location: Berlin; Roles: Product Manager", Confidence: 0.8},
		Goals:        extract.Field{Value: "Fix releases", Confidence: 0.7},
		Challenges:   extract.Field{Value: "Slow process", Confidence: 0.6},
		Confidence:   0.75,
	}
	linked := map[string][]types.EvidenceItem{
		assemble.FieldDemographics: {linkedItem("I'm a senior PM", "sarah")},
		assemble.FieldGoals:        {linkedItem("I want to fix releases", "sarah")},
	}

	p := assemble.New().Assemble(testScope(), bag, linked)

	if p.ID == "" {
		t.Error("persona has no id")
	}
	d := p.Demographics
	if d.ExperienceLevel.Value != "Senior" {
		t.Errorf("ExperienceLevel = %q", d.ExperienceLevel.Value)
	}
	if d.Industry.Value != "SaaS" {
		t.Errorf("Industry = %q", d.Industry.Value)
	}
	if d.Location.Value != "Berlin" {
		t.Errorf("Location = %q", d.Location.Value)
	}
	if d.Roles.Value != "Product Manager" {
		t.Errorf("Roles = %q", d.Roles.Value)
	}
	if d.Confidence != 0.8 {
		t.Errorf("demographic confidence = %v, want 0.8", d.Confidence)
	}
	if p.OverallConfidence != 0.75 {
		t.Errorf("OverallConfidence = %v, want explicit 0.75 adopted", p.OverallConfidence)
	}
	if p.Metadata.DocumentID != "sarah" {
		t.Errorf("DocumentID = %q, want sarah", p.Metadata.DocumentID)
	}
}

func TestAssemble_ConfidenceAveraging(t *testing.T) {
	t.Parallel()

	bag := &extract.AttributeBag{
		Name:         "Sarah",
		Demographics: extract.Field{Confidence: 0.8},
		Goals:        extract.Field{Confidence: 0.4},
		Challenges:   extract.Field{Confidence: 0}, // zero excluded from the mean
	}
	p := assemble.New().Assemble(testScope(), bag, map[string][]types.EvidenceItem{})
	if math.Abs(p.OverallConfidence-0.6) > 1e-9 {
		t.Errorf("OverallConfidence = %v, want mean of non-zero confidences 0.6", p.OverallConfidence)
	}
}

func TestAssemble_KeyQuoteHarvest(t *testing.T) {
	t.Parallel()

	linked := map[string][]types.EvidenceItem{
		assemble.FieldGoals: {
			linkedItem("quote one", "d"),
			linkedItem("quote two", "d"),
			linkedItem("quote one", "d"), // duplicate dropped
		},
		assemble.FieldChallenges: {linkedItem("quote three", "d")},
	}
	p := assemble.New().Assemble(testScope(), &extract.AttributeBag{Name: "Sarah"}, linked)

	if len(p.KeyQuotes.Evidence) != 3 {
		t.Fatalf("harvested %d quotes, want 3 deduped", len(p.KeyQuotes.Evidence))
	}
	if p.KeyQuotes.Value == "" {
		t.Error("key_quotes value must be populated when evidence exists")
	}
}

func TestAssemble_KeyQuoteCap(t *testing.T) {
	t.Parallel()

	var items []types.EvidenceItem
	for _, q := range []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9"} {
		items = append(items, linkedItem("quote "+q, "d"))
	}
	linked := map[string][]types.EvidenceItem{assemble.FieldKeyQuotes: items}
	p := assemble.New().Assemble(testScope(), &extract.AttributeBag{Name: "Sarah"}, linked)
	if len(p.KeyQuotes.Evidence) != 7 {
		t.Errorf("got %d key quotes, want capped at 7", len(p.KeyQuotes.Evidence))
	}
}

func TestDedupEvidence_Idempotent(t *testing.T) {
	t.Parallel()

	items := []types.EvidenceItem{
		linkedItem("same quote", "d"),
		linkedItem(" same quote ", "d"),
		linkedItem("other quote", "d"),
	}
	once := assemble.DedupEvidence(items)
	twice := assemble.DedupEvidence(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("dedup is not idempotent: %+v vs %+v", once, twice)
	}
	if len(once) != 2 {
		t.Errorf("got %d items, want 2 after trim-equality dedup", len(once))
	}
}

func TestParseDemographics_KeywordFallback(t *testing.T) {
	t.Parallel()

	d := assemble.ParseDemographics("A senior product manager in fintech, based in Amsterdam, early 40s", 0.5, nil)
	if d.ExperienceLevel.Value == "" {
		t.Error("experience keyword not detected")
	}
	if d.Industry.Value == "" {
		t.Error("industry keyword not detected")
	}
	if d.Location.Value != "Amsterdam" {
		t.Errorf("Location = %q, want Amsterdam", d.Location.Value)
	}
	if d.AgeRange.Value == "" {
		t.Error("age keyword not detected")
	}
	if d.Roles.Value == "" {
		t.Error("role keyword not detected")
	}
}

func TestParseDemographics_LeftoverToProfessionalContext(t *testing.T) {
	t.Parallel()

	d := assemble.ParseDemographics("Experience: Senior; works with a distributed team of twelve", 0.5, nil)
	if d.ExperienceLevel.Value != "Senior" {
		t.Errorf("ExperienceLevel = %q", d.ExperienceLevel.Value)
	}
	if d.ProfessionalContext.Value != "works with a distributed team of twelve" {
		t.Errorf("ProfessionalContext = %q", d.ProfessionalContext.Value)
	}
}

func TestSynthesize_Fallback(t *testing.T) {
	t.Parallel()

	p := assemble.Synthesize(types.RoleInterviewee, "Sarah")
	if !p.Metadata.IsFallback || p.Metadata.Source != assemble.SourceFallback {
		t.Errorf("metadata = %+v, want fallback flags", p.Metadata)
	}
	if p.OverallConfidence != 0.3 {
		t.Errorf("OverallConfidence = %v, want 0.3", p.OverallConfidence)
	}
	if p.Demographics.Confidence != 0.6 {
		t.Errorf("trait confidence = %v, want 0.6", p.Demographics.Confidence)
	}
	if p.Name != "Sarah" {
		t.Errorf("Name = %q, want name hint", p.Name)
	}
	if p.GoalsAndMotivations.Value == "" || p.ChallengesAndFrustrations.Value == "" {
		t.Error("fallback persona must populate required prose fields")
	}
}

func TestSynthesize_InterviewerProseDiffers(t *testing.T) {
	t.Parallel()

	interviewer := assemble.Synthesize(types.RoleInterviewer, "Dana")
	participant := assemble.Synthesize(types.RoleInterviewee, "Dana")
	if interviewer.Description == participant.Description {
		t.Error("interviewer fallback prose must differ from participant prose")
	}
	if interviewer.Archetype == participant.Archetype {
		t.Error("interviewer archetype must differ")
	}
}
