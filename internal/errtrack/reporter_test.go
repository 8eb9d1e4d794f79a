package errtrack

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/platform/logger"
)

func TestCapture_NeverBlocks(t *testing.T) {
	r := New(2, logger.New("development"))
	defer r.Close(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			r.Capture(Report{Op: "test", Err: errors.New("boom")})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture blocked under load")
	}
}

func TestCapture_NilSafe(t *testing.T) {
	var r *Reporter
	r.Capture(Report{Op: "test", Err: errors.New("boom")})
	if r.Dropped() != 0 {
		t.Fatal("nil reporter must be inert")
	}
}

func TestClose_DrainsAndReturnsNil(t *testing.T) {
	r := New(4, logger.New("development"))
	r.Capture(Report{Op: "test", Err: errors.New("boom")})

	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("close after drain: %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
}

func TestCapture_NilErrorIgnored(t *testing.T) {
	r := New(1, logger.New("development"))
	defer r.Close(context.Background())

	r.Capture(Report{Op: "test"})
	if r.Dropped() != 0 {
		t.Fatal("nil error must not count as a report")
	}
}
