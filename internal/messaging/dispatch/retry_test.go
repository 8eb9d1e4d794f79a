package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyDo_StopsAfterAttempts(t *testing.T) {
	p := Policy{Attempts: 3, BackoffBase: time.Millisecond}

	calls := 0
	wantErr := errors.New("sink down")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestPolicyDo_ContextCancelStopsBackoff(t *testing.T) {
	p := Policy{Attempts: 5, BackoffBase: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("sink down")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancel, got %d", calls)
	}
}
