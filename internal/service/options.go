package service

import (
	"time"

	"go-stepflow/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type options struct {
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	maxRetries    int
	retryInterval time.Duration
}

// Option configures the services in this package.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now. Tests use it to move past due dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxConflictRetries bounds how often a transition is re-run after
// losing an optimistic-lock race.
func WithMaxConflictRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

func WithRetryInterval(d time.Duration) Option {
	return func(o *options) { o.retryInterval = d }
}

func buildOptions(opts []Option) options {
	o := options{
		now:           func() time.Time { return time.Now().UTC() },
		maxRetries:    3,
		retryInterval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = observability.InitMetrics(prometheus.NewRegistry())
	}
	return o
}
