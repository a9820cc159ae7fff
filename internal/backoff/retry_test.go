package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

type retryableErr struct{ retryable bool }

func (e retryableErr) Error() string   { return "boom" }
func (e retryableErr) Retryable() bool { return e.retryable }

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Config{Retries: 3, BaseDelayMs: 10, MaxDelayMs: 100, Factor: 2, JitterRatio: 0},
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Fatalf("expected one call returning ok, got calls=%d result=%q", calls, result)
	}
}

func TestDoRetriesRetryableError(t *testing.T) {
	calls := 0
	var slept []time.Duration
	cfg := Config{
		Retries: 2, BaseDelayMs: 10, MaxDelayMs: 1000, Factor: 2, JitterRatio: 0,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	_, err := Do(context.Background(), cfg, func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", retryableErr{retryable: true}
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !exhausted.RetryExhausted {
		t.Error("expected RetryExhausted=true")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls)
	}
	if len(slept) != 2 {
		t.Errorf("expected 2 sleeps between 3 attempts, got %d", len(slept))
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Config{Retries: 5, BaseDelayMs: 10, MaxDelayMs: 100, Factor: 2},
		func(ctx context.Context, attempt int) (string, error) {
			calls++
			return "", retryableErr{retryable: false}
		})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.RetryExhausted {
		t.Error("expected RetryExhausted=false for a non-retryable error")
	}
	if calls != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls)
	}
}

func TestDelayCapsAtMaxAndAddsJitter(t *testing.T) {
	cfg := Config{BaseDelayMs: 100, MaxDelayMs: 150, Factor: 2, JitterRatio: 0.5}

	d1 := Delay(cfg, 1, func() float64 { return 0 })
	if d1 != 100*time.Millisecond {
		t.Errorf("attempt 1 expected 100ms with no jitter, got %v", d1)
	}

	d2 := Delay(cfg, 2, func() float64 { return 0 })
	if d2 != 150*time.Millisecond {
		t.Errorf("attempt 2 expected capped at 150ms, got %v", d2)
	}

	d3 := Delay(cfg, 1, func() float64 { return 1 })
	if d3 != 150*time.Millisecond {
		t.Errorf("attempt 1 with full jitter expected 100ms+50ms=150ms, got %v", d3)
	}
}

func TestDefaultShouldRetryClassifiesNetworkCodes(t *testing.T) {
	if !DefaultShouldRetry(errors.New("dial tcp: connect: ECONNREFUSED"), 1) {
		t.Error("expected ECONNREFUSED message to be retryable")
	}
	if DefaultShouldRetry(errors.New("validation failed"), 1) {
		t.Error("expected an unrelated error to be non-retryable")
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, Config{Retries: 3, BaseDelayMs: 1, MaxDelayMs: 10, Factor: 2},
		func(ctx context.Context, attempt int) (string, error) {
			t.Fatal("operation should not run with an already-cancelled context")
			return "", nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
