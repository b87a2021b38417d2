package core

import (
	"context"
	"log"
	"time"
)

// Logger is the minimal structured logging contract the service and its
// callers depend on. Key-value pairs follow the message.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// MetricsRecorder aggregates operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan terminates a started span.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// Clock abstracts the time source so expiry scenarios are replayable in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the function's current time.
func (f ClockFunc) Now() time.Time { return f() }

// StdLogger writes through the standard library logger.
type StdLogger struct {
	L *log.Logger
}

func (s StdLogger) printf(level, msg string, kv []any) {
	logger := s.L
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("%s %s %v", level, msg, kv)
}

// Debug logs at debug level.
func (s StdLogger) Debug(msg string, kv ...any) { s.printf("DEBUG", msg, kv) }

// Info logs at info level.
func (s StdLogger) Info(msg string, kv ...any) { s.printf("INFO", msg, kv) }

// Error logs at error level.
func (s StdLogger) Error(msg string, kv ...any) { s.printf("ERROR", msg, kv) }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type nopSpan struct{}

func (nopSpan) End(error) {}

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, nopSpan{}
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger installs a logger; nil is ignored.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics installs a metrics recorder; nil is ignored.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer; nil is ignored.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock installs a time source; nil is ignored.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}
