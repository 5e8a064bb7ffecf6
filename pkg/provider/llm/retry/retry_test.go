package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/personaforge/pkg/provider/llm"
	"github.com/MrWong99/personaforge/pkg/provider/llm/mock"
	"github.com/MrWong99/personaforge/pkg/provider/llm/retry"
)

func svcErr(kind llm.Kind) error {
	return &llm.ServiceError{Kind: kind, Provider: "mock", Err: errors.New("boom")}
}

func TestWrap_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{}
	calls := 0
	inner.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		if calls < 3 {
			return nil, svcErr(llm.KindRateLimit)
		}
		return &llm.CompletionResponse{Content: "ok"}, nil
	}

	p := retry.Wrap(inner,
		retry.WithMaxRetries(3),
		retry.WithInitialInterval(1),
		retry.WithMaxInterval(1),
	)
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}
	if calls != 3 {
		t.Errorf("inner called %d times, want 3", calls)
	}
}

func TestWrap_DoesNotRetryNonTransient(t *testing.T) {
	t.Parallel()

	for _, kind := range []llm.Kind{llm.KindMalformed, llm.KindOther} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()

			inner := &mock.Provider{CompleteErr: svcErr(kind)}
			p := retry.Wrap(inner, retry.WithMaxRetries(5), retry.WithInitialInterval(1))

			_, err := p.Complete(context.Background(), llm.CompletionRequest{})
			if llm.KindOf(err) != kind {
				t.Fatalf("KindOf(err) = %s, want %s", llm.KindOf(err), kind)
			}
			if got := len(inner.Calls()); got != 1 {
				t.Errorf("inner called %d times, want exactly 1", got)
			}
		})
	}
}

func TestWrap_ExhaustedRetriesSurfaceLastError(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{CompleteErr: svcErr(llm.KindTimeout)}
	p := retry.Wrap(inner, retry.WithMaxRetries(2), retry.WithInitialInterval(1), retry.WithMaxInterval(1))

	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if llm.KindOf(err) != llm.KindTimeout {
		t.Fatalf("KindOf(err) = %s, want timeout", llm.KindOf(err))
	}
	// Initial attempt plus two retries.
	if got := len(inner.Calls()); got != 3 {
		t.Errorf("inner called %d times, want 3", got)
	}
}

func TestWrap_CancelledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &mock.Provider{CompleteErr: svcErr(llm.KindTimeout)}
	p := retry.Wrap(inner, retry.WithMaxRetries(10), retry.WithInitialInterval(1))

	_, err := p.Complete(ctx, llm.CompletionRequest{})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if got := len(inner.Calls()); got > 1 {
		t.Errorf("inner called %d times after cancellation, want at most 1", got)
	}
}

func TestWrap_Delegation(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{
		TokenCount: 42,
		Caps:       llm.ModelCapabilities{ContextWindow: 128000},
	}
	p := retry.Wrap(inner)

	if n, err := p.CountTokens(nil); err != nil || n != 42 {
		t.Errorf("CountTokens = %d, %v; want 42, nil", n, err)
	}
	if caps := p.Capabilities(); caps.ContextWindow != 128000 {
		t.Errorf("Capabilities = %+v", caps)
	}
}
