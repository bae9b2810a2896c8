package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("503")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond})
	cause := errors.New("503")

	err := r.Execute(context.Background(), func(context.Context) error { return cause })
	if !errors.Is(err, ErrMaxRetriesExceeded) || !errors.Is(err, cause) {
		t.Errorf("Execute() error = %v, want ErrMaxRetriesExceeded wrapping cause", err)
	}
}

func TestRetry_SingleAttemptReturnsCause(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 1})
	cause := errors.New("503")

	if err := r.Execute(context.Background(), func(context.Context) error { return cause }); err != cause {
		t.Errorf("Execute() error = %v, want %v", err, cause)
	}
}

func TestRetry_PermanentStops(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(errors.New("404"))
	})
	if !IsPermanent(err) {
		t.Errorf("Execute() error = %v, want permanent", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_RetryIf(t *testing.T) {
	retryable := errors.New("retryable")
	r := NewRetry(RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		RetryIf:      func(err error) bool { return errors.Is(err, retryable) },
	})

	attempts := 0
	_ = r.Execute(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("other")
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Execute(ctx, func(context.Context) error { return errors.New("503") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Execute() did not stop waiting on cancellation")
	}
}

func TestRetry_Delays(t *testing.T) {
	tests := []struct {
		name     string
		config   RetryConfig
		attempt  int
		err      error
		expected time.Duration
	}{
		{"constant", RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant}, 3, errors.New("x"), 100 * time.Millisecond},
		{"linear", RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffLinear}, 3, errors.New("x"), 300 * time.Millisecond},
		{"exponential", RetryConfig{InitialDelay: 100 * time.Millisecond}, 3, errors.New("x"), 400 * time.Millisecond},
		{"capped", RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second}, 5, errors.New("x"), 2 * time.Second},
		{"retry-after hint", RetryConfig{InitialDelay: time.Millisecond}, 1, RetryAfter(errors.New("429"), 3*time.Second), 3 * time.Second},
		{"hint capped", RetryConfig{MaxDelay: time.Second}, 1, RetryAfter(errors.New("429"), time.Minute), time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(tt.config)
			if got := r.delay(tt.attempt, tt.err); got != tt.expected {
				t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestRetry_JitterBounds(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant, Jitter: true})
	for i := 0; i < 100; i++ {
		d := r.delay(1, errors.New("x"))
		if d < 100*time.Millisecond || d >= 125*time.Millisecond {
			t.Fatalf("delay with jitter = %v, want [100ms, 125ms)", d)
		}
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var seen []int
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry:      func(attempt int, _ error, _ time.Duration) { seen = append(seen, attempt) },
	})
	_ = r.Execute(context.Background(), func(context.Context) error { return errors.New("x") })

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", seen)
	}
}
