// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// InstanceIDKey is the context key for the channel instance ID
	InstanceIDKey contextKey = "instance_id"
	// ContactKey is the context key for the contact address
	ContactKey contextKey = "contact"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, instance_id, and contact from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	out := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		out = &Logger{Logger: out.With(slog.String("request_id", requestID))}
	}
	if instanceID, ok := ctx.Value(InstanceIDKey).(string); ok && instanceID != "" {
		out = &Logger{Logger: out.With(slog.String("instance_id", instanceID))}
	}
	if contact, ok := ctx.Value(ContactKey).(string); ok && contact != "" {
		out = &Logger{Logger: out.With(slog.String("contact", contact))}
	}

	return out
}

// WithInstance returns a logger bound to a channel instance.
func (l *Logger) WithInstance(instanceID string) *Logger {
	return &Logger{Logger: l.With(slog.String("instance_id", instanceID))}
}

// WithContact returns a logger bound to a contact address.
func (l *Logger) WithContact(contact string) *Logger {
	return &Logger{Logger: l.With(slog.String("contact", contact))}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// DispatchFailure logs an exhausted external dispatch.
func (l *Logger) DispatchFailure(sink, instanceID, contact string, attempts int, err error) {
	l.Error("dispatch_failure",
		slog.String("sink", sink),
		slog.String("instance_id", instanceID),
		slog.String("contact", contact),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
