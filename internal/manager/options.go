package manager

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/logger"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLimits sets the field bounds applied on registration.
func WithLimits(limits domain.Limits) Option {
	return func(m *Manager) { m.limits = limits }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithTracer sets the tracer used for manager spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}
