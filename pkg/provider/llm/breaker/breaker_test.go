package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/personaforge/pkg/provider/llm"
	"github.com/MrWong99/personaforge/pkg/provider/llm/breaker"
	"github.com/MrWong99/personaforge/pkg/provider/llm/mock"
)

func timeoutErr() error {
	return &llm.ServiceError{Kind: llm.KindTimeout, Provider: "mock", Err: errors.New("deadline exceeded")}
}

func TestWrap_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{CompleteErr: timeoutErr()}
	p := breaker.Wrap(inner, breaker.WithMaxFailures(3))

	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}}
	for i := 0; i < 3; i++ {
		if _, err := p.Complete(context.Background(), req); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if got := p.State(); got != breaker.StateOpen {
		t.Fatalf("state after 3 failures = %s, want open", got)
	}

	// The open breaker rejects without touching the provider.
	before := len(inner.Calls())
	_, err := p.Complete(context.Background(), req)
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("open breaker error = %v, want ErrOpen", err)
	}
	if got := len(inner.Calls()); got != before {
		t.Errorf("open breaker forwarded the call (calls %d -> %d)", before, got)
	}
}

func TestWrap_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{}
	fail := true
	inner.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if fail {
			return nil, timeoutErr()
		}
		return &llm.CompletionResponse{Content: "ok"}, nil
	}
	p := breaker.Wrap(inner, breaker.WithMaxFailures(2))

	req := llm.CompletionRequest{}
	_, _ = p.Complete(context.Background(), req)
	fail = false
	if _, err := p.Complete(context.Background(), req); err != nil {
		t.Fatalf("successful call returned error: %v", err)
	}
	fail = true
	_, _ = p.Complete(context.Background(), req)

	if got := p.State(); got != breaker.StateClosed {
		t.Errorf("state = %s, want closed (success reset the counter)", got)
	}
}

func TestWrap_MalformedOutputDoesNotTrip(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{
		CompleteErr: &llm.ServiceError{Kind: llm.KindMalformed, Provider: "mock", Err: errors.New("bad json")},
	}
	p := breaker.Wrap(inner, breaker.WithMaxFailures(1))

	for i := 0; i < 5; i++ {
		_, _ = p.Complete(context.Background(), llm.CompletionRequest{})
	}
	if got := p.State(); got != breaker.StateClosed {
		t.Errorf("state = %s, want closed (malformed output is not an outage)", got)
	}
}

func TestWrap_HalfOpenProbesCloseTheBreaker(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{CompleteErr: timeoutErr()}
	p := breaker.Wrap(inner,
		breaker.WithMaxFailures(1),
		breaker.WithResetTimeout(10*time.Millisecond),
		breaker.WithHalfOpenMax(2),
	)

	_, _ = p.Complete(context.Background(), llm.CompletionRequest{})
	if got := p.State(); got != breaker.StateOpen {
		t.Fatalf("state = %s, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := p.State(); got != breaker.StateHalfOpen {
		t.Fatalf("state after reset timeout = %s, want half-open", got)
	}

	inner.CompleteErr = nil
	inner.CompleteResponse = &llm.CompletionResponse{Content: "ok"}
	for i := 0; i < 2; i++ {
		if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("probe %d returned error: %v", i, err)
		}
	}
	if got := p.State(); got != breaker.StateClosed {
		t.Errorf("state after successful probes = %s, want closed", got)
	}
}

func TestWrap_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{CompleteErr: timeoutErr()}
	p := breaker.Wrap(inner,
		breaker.WithMaxFailures(1),
		breaker.WithResetTimeout(10*time.Millisecond),
	)

	_, _ = p.Complete(context.Background(), llm.CompletionRequest{})
	time.Sleep(20 * time.Millisecond)

	// First probe fails — straight back to open.
	_, _ = p.Complete(context.Background(), llm.CompletionRequest{})
	if got := p.State(); got != breaker.StateOpen {
		t.Errorf("state after failed probe = %s, want open", got)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	inner := &mock.Provider{CompleteErr: timeoutErr()}
	p := breaker.Wrap(inner, breaker.WithMaxFailures(1))
	_, _ = p.Complete(context.Background(), llm.CompletionRequest{})
	p.Reset()
	if got := p.State(); got != breaker.StateClosed {
		t.Errorf("state after Reset = %s, want closed", got)
	}
}
