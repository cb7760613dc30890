package pool

import (
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tidepool/pkg/metrics"
)

// Option configures a Pool.
type Option func(*options)

type options struct {
	name           string
	logger         *zap.Logger
	metrics        *metrics.PoolMetrics
	acquireTimeout time.Duration
}

// WithName names the pool in logs, metrics and Stats.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the pool logger. Defaults to logger.Get().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics attaches Prometheus metrics to the pool.
func WithMetrics(m *metrics.PoolMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAcquireTimeout bounds how long a request may wait in the queue.
// Zero waits as long as the caller's context allows.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) { o.acquireTimeout = d }
}
