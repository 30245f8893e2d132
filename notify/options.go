package notify

import "time"

// Option defines a functional option for configuring a Dispatcher or a Notifier.
type Option func(*Dispatcher) error

// WithObserverTimeout bounds how long a single Observer may take to process a Notification.
// An Observer exceeding it is recorded as failed with ErrObserverTimeout and delivery moves on.
// Zero disables the timeout, which is the default.
func WithObserverTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout < 0 {
			return ErrNegativeObserverTimeout
		}

		d.observerTimeout = timeout

		return nil
	}
}

// WithLogger sets the logger for the Dispatcher.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Info level: one record per publish call with attempted, succeeded and failed counts and the duration
// Warn level: one record per isolated observer failure.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Dispatcher.
// It receives the same records as the Logger, carrying the publish context for trace correlation.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(d *Dispatcher) error {
		d.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Dispatcher.
// It receives publish durations, attempted delivery counts, observer failures by type
// and, when used with a Notifier, the number of active subscriptions.
func WithMetrics(collector MetricsCollector) Option {
	return func(d *Dispatcher) error {
		d.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Dispatcher.
// One span is created per publish call.
func WithTracing(collector TracingCollector) Option {
	return func(d *Dispatcher) error {
		d.tracingCollector = collector
		return nil
	}
}
