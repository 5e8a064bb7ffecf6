package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/personaforge/internal/extract"
	"github.com/MrWong99/personaforge/pkg/provider/llm"
	"github.com/MrWong99/personaforge/pkg/provider/llm/mock"
	"github.com/MrWong99/personaforge/pkg/types"
)

var sarahScope = types.SpeakerScope{
	Speaker: "Sarah",
	Role:    types.RoleInterviewee,
	Text:    "I'm a senior PM at a SaaS company. My biggest frustration is the release process.",
}

const goodBag = `{
	"name": "Sarah",
	"description": "A senior product manager at a SaaS company.",
	"archetype": "The Process Fixer",
	"demographics": {"value": "Experience: Senior; Industry: SaaS; Roles: Product Manager", "confidence": 0.8, "evidence": ["I'm a senior PM at a SaaS company."]},
	"goals_and_motivations": {"value": "Fix the release process", "confidence": 0.7, "evidence": ["My biggest frustration is the release process."]},
	"challenges_and_frustrations": {"value": "Slow releases", "confidence": 0.7, "evidence": ["My biggest frustration is the release process."]},
	"key_quotes": ["My biggest frustration is the release process."],
	"patterns": ["process pain"],
	"confidence": 0.75
}`

func TestExtract_DecodesBag(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodBag},
	}
	c := extract.NewClient(p)

	bag, err := c.Extract(context.Background(), sarahScope, sarahScope.Text)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if bag.Name != "Sarah" {
		t.Errorf("Name = %q, want Sarah", bag.Name)
	}
	if bag.Demographics.Value == "" || bag.Demographics.Confidence != 0.8 {
		t.Errorf("demographics not decoded: %+v", bag.Demographics)
	}
	if len(bag.Goals.Evidence) != 1 {
		t.Errorf("goals evidence = %v", bag.Goals.Evidence)
	}
	if bag.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", bag.Confidence)
	}
}

func TestExtract_RepairsFencedOutput(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "```json\n" + goodBag + "\n```"},
	}
	bag, err := extract.NewClient(p).Extract(context.Background(), sarahScope, sarahScope.Text)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if bag.Archetype != "The Process Fixer" {
		t.Errorf("Archetype = %q", bag.Archetype)
	}
}

func TestExtract_UnrecoverableIsMalformedKind(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I cannot help with that."},
	}
	_, err := extract.NewClient(p).Extract(context.Background(), sarahScope, sarahScope.Text)
	if err == nil {
		t.Fatal("expected error for unparseable response")
	}
	if llm.KindOf(err) != llm.KindMalformed {
		t.Errorf("kind = %s, want %s", llm.KindOf(err), llm.KindMalformed)
	}
}

func TestExtract_ProviderErrorPassesThrough(t *testing.T) {
	t.Parallel()

	sentinel := &llm.ServiceError{Kind: llm.KindRateLimit, Provider: "mock", Err: errors.New("429")}
	p := &mock.Provider{CompleteErr: sentinel}
	_, err := extract.NewClient(p).Extract(context.Background(), sarahScope, sarahScope.Text)
	if llm.KindOf(err) != llm.KindRateLimit {
		t.Errorf("kind = %s, want rate_limit", llm.KindOf(err))
	}
}

func TestExtract_PromptVariesByRole(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodBag},
	}
	c := extract.NewClient(p)

	interviewer := sarahScope
	interviewer.Speaker = "Dana"
	interviewer.Role = types.RoleInterviewer
	if _, err := c.Extract(context.Background(), interviewer, interviewer.Text); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	prompt := calls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "INTERVIEWER") {
		t.Errorf("interviewer prompt missing role framing: %q", prompt)
	}
	if calls[0].Req.SystemPrompt == "" {
		t.Error("system prompt not set")
	}
}

func TestExtract_DefaultsNameToSpeaker(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"name": "", "confidence": 0.5}`},
	}
	bag, err := extract.NewClient(p).Extract(context.Background(), sarahScope, sarahScope.Text)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if bag.Name != "Sarah" {
		t.Errorf("Name = %q, want speaker label fallback", bag.Name)
	}
}

func TestExtract_TruncationKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	// ContextWindow 1001 minus max tokens and prompt overhead leaves a
	// 51-token budget against a reported count of 100, so the naive byte cut
	// lands mid-rune in a scope of two-byte runes.
	p := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: goodBag},
		TokenCount:       100,
		Caps:             llm.ModelCapabilities{ContextWindow: 1001},
	}
	c := extract.NewClient(p, extract.WithMaxTokens(50))

	text := "a" + strings.Repeat("é", 100)
	if _, err := c.Extract(context.Background(), sarahScope, text); err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	prompt := calls[0].Req.Messages[0].Content
	if !utf8.ValidString(prompt) {
		t.Error("truncated prompt contains invalid UTF-8")
	}
	if strings.Contains(prompt, text) {
		t.Error("scope was not truncated")
	}
}

func TestCleaner_FailOpen(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		p    *mock.Provider
	}{
		{
			name: "provider error",
			p:    &mock.Provider{CompleteErr: errors.New("boom")},
		},
		{
			name: "empty response",
			p:    &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  "}},
		},
		{
			name: "suspicious shrink",
			p:    &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "PM."}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := extract.NewCleaner(tc.p, nil).Clean(context.Background(), sarahScope)
			if got != sarahScope.Text {
				t.Errorf("Clean = %q, want original text back", got)
			}
		})
	}
}

func TestCleaner_AcceptsPlausibleResult(t *testing.T) {
	t.Parallel()

	cleaned := "I'm a senior PM at a SaaS company. My biggest frustration is the release process. Done."
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: cleaned}}
	got := extract.NewCleaner(p, nil).Clean(context.Background(), sarahScope)
	if got != cleaned {
		t.Errorf("Clean = %q, want cleaned text", got)
	}
}
