package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/personaforge/pkg/provider/llm"
	"github.com/MrWong99/personaforge/pkg/types"
)

const cleanerSystemPrompt = `You clean interview transcript excerpts. Remove filler words ("um", "uh", "you know"), transcription artifacts, and stray lines that clearly belong to a different speaker. Fix obvious transcription typos. Do NOT summarise, reorder, or drop substantive content. Respond with the cleaned text only.`

// Cleaner produces a lightly cleaned variant of a speaker's scope text for
// extraction. It is strictly fail-open: any provider error, an empty
// response, or a response that shrank suspiciously all fall back to the
// input unchanged.
//
// Cleaned text feeds extraction only. Evidence linking always runs against
// the original scope text, so cleaning can never invalidate offsets.
type Cleaner struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewCleaner returns a [Cleaner] backed by provider. A nil logger defaults
// to [slog.Default].
func NewCleaner(provider llm.Provider, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{provider: provider, logger: logger}
}

// Clean returns a cleaned copy of scope.Text, or scope.Text itself when
// cleaning fails or the result looks untrustworthy.
func (c *Cleaner) Clean(ctx context.Context, scope types.SpeakerScope) string {
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: cleanerSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("Dialogue of %q:\n\"\"\"\n%s\n\"\"\"", scope.Speaker, scope.Text)},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("scope cleaning failed, using original text",
			"speaker", scope.Speaker, "error", err, "kind", llm.KindOf(err))
		return scope.Text
	}

	cleaned := strings.TrimSpace(resp.Content)
	cleaned = strings.Trim(cleaned, `"`)
	if !plausibleCleaning(scope.Text, cleaned) {
		c.logger.Warn("cleaned text rejected, using original", "speaker", scope.Speaker,
			"original_len", len(scope.Text), "cleaned_len", len(cleaned))
		return scope.Text
	}
	return cleaned
}

// plausibleCleaning rejects cleaning results that lost too much content.
// Filler removal shortens text a little; losing more than half of it means
// the model summarised or refused.
func plausibleCleaning(original, cleaned string) bool {
	if cleaned == "" {
		return false
	}
	return len(cleaned)*2 >= len(original)
}
