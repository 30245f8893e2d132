// Package redeliver re-attempts delivery of a Notification to the observers that failed during a publish call.
//
// The core Dispatcher never retries. Redeliver is the caller side policy: it takes a DeliveryReport,
// looks up which failed handles are still subscribed and delivers to just those, with exponential backoff.
package redeliver

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

const (
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 10 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
	defaultJitterFactor = 0.3

	// MetricRedeliveryDelay is the backoff delay waited before a redelivery round.
	MetricRedeliveryDelay = "notify_redelivery_delay_seconds"

	// MetricRedeliveryExhausted counts Redeliver calls that ended with failures left.
	MetricRedeliveryExhausted = "notify_redelivery_exhausted_total"
)

var (
	// ErrNilDeliverer is returned when Redeliver is called without a Deliverer.
	ErrNilDeliverer = errors.New("deliverer must not be nil")

	// ErrNilLookup is returned when Redeliver is called without a Lookup.
	ErrNilLookup = errors.New("lookup must not be nil")

	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidMaxDelay is returned when the max delay is not positive.
	ErrInvalidMaxDelay = errors.New("max delay must be positive")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")

	// ErrNilRetryable is returned when WithRetryable is given a nil function.
	ErrNilRetryable = errors.New("retryable function must not be nil")
)

// Deliverer delivers a Notification to a given Snapshot. notify.Dispatcher implements it.
type Deliverer interface {
	Deliver(ctx context.Context, notification notify.Notification, snapshot notify.Snapshot) notify.DeliveryReport
}

// Lookup resolves a Handle to its Observer while the subscription is active. notify.Registry implements it.
type Lookup interface {
	Lookup(handle notify.Handle) (notify.Observer, bool)
}

type config struct {
	maxAttempts      int
	baseDelay        time.Duration
	maxDelay         time.Duration
	jitterFactor     float64
	retryable        func(reason error) bool
	metricsCollector notify.MetricsCollector
}

// Option configures Redeliver.
type Option func(*config) error

// Redeliver re-attempts delivery of notification to the failed handles of report.
//
// Each round waits baseDelay * 2^(round-1) plus jitter, capped at maxDelay, then delivers to the failed handles that are
// still subscribed and whose last failure reason is retryable. Handles that were unsubscribed in the
// meantime are not invoked again and keep their last failure.
//
// The returned report merges report with all rounds: Attempted is unchanged, recovered handles move
// from Failures to Succeeded, Failures keeps the order of report and holds the latest reason per handle.
// If ctx ends while waiting, the merged report so far is returned together with the context error.
func Redeliver(
	ctx context.Context,
	deliverer Deliverer,
	lookup Lookup,
	notification notify.Notification,
	report notify.DeliveryReport,
	options ...Option,
) (notify.DeliveryReport, error) {

	if deliverer == nil {
		return report, ErrNilDeliverer
	}

	if lookup == nil {
		return report, ErrNilLookup
	}

	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		maxDelay:     defaultMaxDelay,
		jitterFactor: defaultJitterFactor,
		retryable:    IsRetryable,
	}

	for _, option := range options {
		if err := option(cfg); err != nil {
			return report, err
		}
	}

	start := time.Now()
	r := newRound(report)

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		pending := r.pending(cfg.retryable, lookup)
		if pending.Len() == 0 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		recordDelay(cfg, attempt, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return r.merged(time.Since(start)), ctx.Err()
		}

		r.apply(pending.Handles(), deliverer.Deliver(ctx, notification, pending))
	}

	merged := r.merged(time.Since(start))
	if !merged.OK() {
		recordExhausted(cfg, merged)
	}

	return merged, nil
}

// IsRetryable is the default retry policy: every failure is retried except observer panics.
func IsRetryable(reason error) bool {
	return !errors.Is(reason, notify.ErrObserverPanicked)
}

// round tracks the latest outcome per failed handle across redelivery rounds.
type round struct {
	original  notify.DeliveryReport
	latest    map[notify.Handle]error
	recovered int
}

func newRound(report notify.DeliveryReport) *round {
	latest := make(map[notify.Handle]error, len(report.Failures))
	for _, failure := range report.Failures {
		latest[failure.Handle] = failure.Reason
	}

	return &round{original: report, latest: latest}
}

// pending returns the still failed, retryable handles that are still subscribed, in report order.
func (r *round) pending(retryable func(error) bool, lookup Lookup) notify.Snapshot {
	subscriptions := make([]notify.Subscription, 0, len(r.latest))

	for _, failure := range r.original.Failures {
		reason, failed := r.latest[failure.Handle]
		if !failed || !retryable(reason) {
			continue
		}

		observer, subscribed := lookup.Lookup(failure.Handle)
		if !subscribed {
			continue
		}

		subscriptions = append(subscriptions, notify.Subscription{Handle: failure.Handle, Observer: observer})
	}

	return notify.NewSnapshot(subscriptions...)
}

func (r *round) apply(delivered []notify.Handle, report notify.DeliveryReport) {
	failed := make(map[notify.Handle]error, len(report.Failures))
	for _, failure := range report.Failures {
		failed[failure.Handle] = failure.Reason
	}

	for _, handle := range delivered {
		if reason, ok := failed[handle]; ok {
			r.latest[handle] = reason
			continue
		}

		delete(r.latest, handle)
		r.recovered++
	}
}

func (r *round) merged(elapsed time.Duration) notify.DeliveryReport {
	merged := notify.DeliveryReport{
		NotificationID: r.original.NotificationID,
		Attempted:      r.original.Attempted,
		Succeeded:      r.original.Succeeded + r.recovered,
		Duration:       r.original.Duration + elapsed,
	}

	for _, failure := range r.original.Failures {
		if reason, ok := r.latest[failure.Handle]; ok {
			merged.Failures = append(merged.Failures, notify.Failure{Handle: failure.Handle, Reason: reason})
		}
	}

	return merged
}

// backoffDelay is baseDelay * 2^(attempt-1) plus up to jitterFactor of that, never more than maxDelay.
// The doubling saturates at maxDelay instead of overflowing for large attempt numbers.
func backoffDelay(cfg *config, attempt int) time.Duration {
	if cfg.baseDelay == 0 {
		return 0
	}

	delay := cfg.maxDelay
	if shift := attempt - 1; shift < 63 && cfg.baseDelay <= cfg.maxDelay>>shift {
		delay = cfg.baseDelay << shift
	}

	jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // math/rand is sufficient for jitter

	return min(delay+time.Duration(jitter), cfg.maxDelay)
}

func recordDelay(cfg *config, attempt int, delay time.Duration) {
	if cfg.metricsCollector == nil {
		return
	}

	cfg.metricsCollector.RecordDuration(MetricRedeliveryDelay, delay, map[string]string{
		"attempt_number": strconv.Itoa(attempt),
	})
}

func recordExhausted(cfg *config, report notify.DeliveryReport) {
	if cfg.metricsCollector == nil {
		return
	}

	for _, failure := range report.Failures {
		cfg.metricsCollector.IncrementCounter(MetricRedeliveryExhausted, map[string]string{
			"final_failure_type": notify.FailureType(failure.Reason),
		})
	}
}

// WithMaxAttempts sets the maximum number of redelivery rounds.
func WithMaxAttempts(attempts int) Option {
	return func(cfg *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		cfg.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the delay before the first round. Later rounds double it.
func WithBaseDelay(delay time.Duration) Option {
	return func(cfg *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		cfg.baseDelay = delay

		return nil
	}
}

// WithMaxDelay caps the delay of every round, jitter included. The default is 30s.
func WithMaxDelay(delay time.Duration) Option {
	return func(cfg *config) error {
		if delay <= 0 {
			return ErrInvalidMaxDelay
		}

		cfg.maxDelay = delay

		return nil
	}
}

// WithJitterFactor sets the random jitter added to each delay, as a fraction of it.
// Valid range: 0.0 (no jitter) to 1.0 (100% jitter).
func WithJitterFactor(factor float64) Option {
	return func(cfg *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		cfg.jitterFactor = factor

		return nil
	}
}

// WithRetryable replaces IsRetryable as the policy deciding which failure reasons are retried.
func WithRetryable(retryable func(reason error) bool) Option {
	return func(cfg *config) error {
		if retryable == nil {
			return ErrNilRetryable
		}

		cfg.retryable = retryable

		return nil
	}
}

// WithMetrics sets the metrics collector receiving backoff delays and exhausted redeliveries.
func WithMetrics(collector notify.MetricsCollector) Option {
	return func(cfg *config) error {
		cfg.metricsCollector = collector
		return nil
	}
}
