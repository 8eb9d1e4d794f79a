// Package errtrack collects non-fatal pipeline errors off the hot path.
// Reporting never blocks and never fails the caller: the webhook path keeps
// its latency budget even when error volume spikes.
package errtrack

import (
	"context"
	"sync"
	"sync/atomic"

	"leadflow_backend/platform/logger"
)

// Report is one recorded error with its origin.
type Report struct {
	Op         string
	InstanceID string
	Contact    string
	Err        error
}

// Reporter drains reports on a single background goroutine. The channel is
// bounded; when full, new reports are counted and dropped.
type Reporter struct {
	ch      chan Report
	dropped atomic.Int64
	log     *logger.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

// New creates a reporter with the given buffer size and starts its drain
// goroutine.
func New(buffer int, log *logger.Logger) *Reporter {
	if buffer < 1 {
		buffer = 256
	}
	r := &Reporter{
		ch:  make(chan Report, buffer),
		log: log,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Capture records a non-fatal error. Safe to call from any goroutine and
// safe on a nil reporter.
func (r *Reporter) Capture(report Report) {
	if r == nil || report.Err == nil {
		return
	}
	select {
	case r.ch <- report:
	default:
		r.dropped.Add(1)
	}
}

func (r *Reporter) drain() {
	defer r.wg.Done()
	for report := range r.ch {
		r.log.Error("pipeline error",
			"op", report.Op,
			"instance_id", report.InstanceID,
			"contact", report.Contact,
			"error", report.Err.Error(),
		)
	}
}

// Dropped returns how many reports were discarded due to backpressure.
func (r *Reporter) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close stops the reporter after draining buffered reports. It returns the
// context error when the drain did not finish in time.
func (r *Reporter) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.once.Do(func() { close(r.ch) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if n := r.Dropped(); n > 0 {
		r.log.Warn("error reports dropped", "count", n)
	}
	return nil
}
