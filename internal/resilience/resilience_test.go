package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsWithoutRetryingOnFirstAttempt(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second}
	err := Retry(context.Background(), "op", policy, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestRetry_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second}
	err := Retry(context.Background(), "op", policy, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected three calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	wantErr := errors.New("permanent failure")
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second}
	err := Retry(context.Background(), "op", policy, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 3 {
		t.Fatalf("expected three attempts, got %d", calls)
	}
}

func TestRetry_ContextCancellationDuringBackoffStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second}
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, "op", policy, func() error {
		calls++
		return errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls >= 5 {
		t.Fatalf("expected cancellation to cut attempts short, got %d calls", calls)
	}
}

func TestRetry_SingleSuccessfulAttemptNeverBacksOff(t *testing.T) {
	policy := Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, BackoffFactor: 100, MaxDelay: 10 * time.Millisecond}
	if policy.MaxDelay != 10*time.Millisecond {
		t.Fatal("sanity check on fixture")
	}
	// single attempt succeeds so backoff math never runs; the MaxDelay cap
	// is not exercised here.
	err := Retry(context.Background(), "op", policy, func() error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRetryValue_ReturnsSuccessfulValue(t *testing.T) {
	policy := Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second}
	calls := 0
	v, err := RetryValue(context.Background(), "op", policy, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first attempt fails")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestGracefulDegradation_ReturnsFallbackOnError(t *testing.T) {
	got := GracefulDegradation(context.Background(), "op", []string{"fallback"}, func() ([]string, error) {
		return nil, errors.New("boom")
	})
	if len(got) != 1 || got[0] != "fallback" {
		t.Fatalf("expected fallback value, got %v", got)
	}
}

func TestGracefulDegradation_ReturnsRealValueOnSuccess(t *testing.T) {
	got := GracefulDegradation(context.Background(), "op", []string{"fallback"}, func() ([]string, error) {
		return []string{"real"}, nil
	})
	if len(got) != 1 || got[0] != "real" {
		t.Fatalf("expected real value, got %v", got)
	}
}
