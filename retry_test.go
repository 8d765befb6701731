package mysequel

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errRetry = errors.New("retryable")
var errNonRetry = errors.New("non-retryable")

func classifyForTest(err error) ErrorClass {
	if errors.Is(err, errRetry) {
		return ErrClassRetryable
	}
	return ErrClassUnknown
}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, MaxElapsed: time.Second}
}

func TestRetry_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	op := func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errRetry
		}
		return 42, nil
	}
	v, err := retryWithPolicy(context.Background(), fastPolicy(2), op, classifyForTest)
	if err != nil {
		t.Fatalf("retryWithPolicy err: %v", err)
	}
	if v != 42 || calls != 3 {
		t.Fatalf("v=%d calls=%d want 42, 3", v, calls)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	op := func() (int, error) { calls++; return 0, errNonRetry }
	if _, err := retryWithPolicy(context.Background(), fastPolicy(5), op, classifyForTest); !errors.Is(err, errNonRetry) {
		t.Fatalf("expected non-retryable returned, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	op := func() (int, error) { calls++; return 0, errRetry }
	if _, err := retryWithPolicy(context.Background(), fastPolicy(2), op, classifyForTest); !errors.Is(err, errRetry) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d want 3", calls)
	}
}

func TestRetry_ZeroRetriesRunsOnce(t *testing.T) {
	calls := 0
	op := func() (int, error) { calls++; return 0, errRetry }
	_, _ = retryWithPolicy(context.Background(), fastPolicy(0), op, classifyForTest)
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func() (int, error) {
		calls++
		cancel()
		return 0, context.Canceled
	}
	if _, err := retryWithPolicy(ctx, fastPolicy(5), op, classifyForTest); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}
