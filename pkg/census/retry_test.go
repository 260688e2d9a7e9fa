package census

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return nil
	}, func(error) ErrorClass { return ErrorClassServer })

	if err != nil {
		t.Fatalf("retryWithBackoff failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_RetriesServerError(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, func(error) ErrorClass { return ErrorClassServer })

	if err != nil {
		t.Fatalf("retryWithBackoff failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_NoRetryForClientError(t *testing.T) {
	calls := 0
	wantErr := errors.New("not found")
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return wantErr
	}, func(error) ErrorClass { return ErrorClassClient })

	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want original error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for client errors)", calls)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("still failing")
	}, func(error) ErrorClass { return ErrorClassServer })

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (max attempts)", calls)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retryWithBackoff(ctx, func() error {
			calls++
			return errors.New("fail")
		}, func(error) ErrorClass { return ErrorClassServer })
	}()

	// Cancel during the first backoff wait.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("error = %v, want ErrContextCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retryWithBackoff did not return after context cancellation")
	}
}
