// Package extract turns a speaker's scoped dialogue into a structured
// attribute bag via a single LLM completion.
//
// The client owns prompt construction and response decoding only. Transport
// resilience (retries, backoff) belongs to the provider decorators in
// pkg/provider/llm/retry, and rate limiting to the pipeline's bounded
// executor — one extraction call maps to exactly one provider call here.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/personaforge/internal/repair"
	"github.com/MrWong99/personaforge/pkg/provider/llm"
	"github.com/MrWong99/personaforge/pkg/types"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 2048
)

// Field is one extracted attribute: a value, the model's confidence in it,
// and the verbatim quotes the model cites as support. Evidence quotes are
// unverified at this stage — the evidence linker decides which survive.
type Field struct {
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// AttributeBag is the raw extraction result for one speaker, prior to
// evidence linking and assembly.
//
// Demographics is deliberately a single flat field here: the model returns a
// "Key: Value; Key: Value" summary string, and the assembler decomposes it
// into the structured demographic schema. Asking the model for nested JSON
// demographics measurably increases malformed output.
type AttributeBag struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Archetype   string `json:"archetype"`

	Demographics Field `json:"demographics"`
	Goals        Field `json:"goals_and_motivations"`
	Challenges   Field `json:"challenges_and_frustrations"`

	KeyQuotes []string `json:"key_quotes"`
	Patterns  []string `json:"patterns"`

	// Confidence is the model's overall confidence for the whole bag,
	// in [0.0, 1.0]. Zero means the model did not supply one.
	Confidence float64 `json:"confidence"`
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTemperature overrides the completion temperature. Extraction defaults
// low (0.2) for stable structured output.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithMaxTokens caps the completion length for one extraction call.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		c.maxTokens = n
	}
}

// WithLogger sets the structured logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client performs attribute extraction against any [llm.Provider].
// Safe for concurrent use.
type Client struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewClient returns a [Client] backed by provider.
func NewClient(provider llm.Provider, opts ...Option) *Client {
	c := &Client{
		provider:    provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Extract requests a structured attribute bag for the given speaker.
//
// text is the dialogue to extract from — normally the cleaned variant of
// scope.Text. The scope itself supplies speaker identity and role so the
// prompt can be tailored (interviewers get a facilitation-focused prompt,
// interviewees the full persona prompt).
//
// Returns a [llm.ServiceError] of kind [llm.KindMalformed] when the response
// cannot be decoded even after repair; transport errors pass through with
// the provider's classification intact.
func (c *Client) Extract(ctx context.Context, scope types.SpeakerScope, text string) (*AttributeBag, error) {
	text = c.clampToWindow(text)

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildUserPrompt(scope.Speaker, scope.Role, text)},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("extract: completion for %q: %w", scope.Speaker, err)
	}

	var bag AttributeBag
	if err := repair.Decode(resp.Content, &bag); err != nil {
		return nil, &llm.ServiceError{
			Kind:     llm.KindMalformed,
			Provider: "extract",
			Err:      fmt.Errorf("decode attribute bag for %q: %w", scope.Speaker, err),
		}
	}

	normalizeBag(&bag, scope)
	c.logger.Debug("attributes extracted",
		"speaker", scope.Speaker,
		"role", scope.Role,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return &bag, nil
}

// clampToWindow truncates text so the prompt plus the completion budget fits
// the provider's context window. Truncation keeps the head of the scope:
// interviews front-load who the speaker is.
func (c *Client) clampToWindow(text string) string {
	caps := c.provider.Capabilities()
	if caps.ContextWindow <= 0 {
		return text
	}
	budget := caps.ContextWindow - c.maxTokens - promptOverheadTokens
	if budget <= 0 {
		return text
	}
	used, err := c.provider.CountTokens([]llm.Message{{Role: "user", Content: text}})
	if err != nil || used <= budget {
		return text
	}
	// Approximate chars-per-token from the actual count and cut there,
	// backed off to a rune boundary so the prompt stays valid UTF-8.
	keep := len(text) * budget / used
	if keep >= len(text) {
		return text
	}
	for keep > 0 && !utf8.RuneStart(text[keep]) {
		keep--
	}
	if keep <= 0 {
		return text
	}
	c.logger.Warn("scope truncated to fit context window", "tokens", used, "budget", budget)
	return text[:keep]
}

// normalizeBag cleans up the model's output in place: trims whitespace,
// clamps confidences into [0, 1], and defaults the name to the speaker label
// when the model returned none.
func normalizeBag(bag *AttributeBag, scope types.SpeakerScope) {
	bag.Name = strings.TrimSpace(bag.Name)
	if bag.Name == "" {
		bag.Name = scope.Speaker
	}
	bag.Description = strings.TrimSpace(bag.Description)
	bag.Archetype = strings.TrimSpace(bag.Archetype)
	bag.Confidence = clamp01(bag.Confidence)

	for _, f := range []*Field{&bag.Demographics, &bag.Goals, &bag.Challenges} {
		f.Value = strings.TrimSpace(f.Value)
		f.Confidence = clamp01(f.Confidence)
		f.Evidence = trimAll(f.Evidence)
	}
	bag.KeyQuotes = trimAll(bag.KeyQuotes)
	bag.Patterns = trimAll(bag.Patterns)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
