package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Dispatcher delivers a Notification to every subscription of a Snapshot, in order,
// isolating each Observer's failure from the others.
//
// A Dispatcher is safe for concurrent use. Concurrent publish calls are independent:
// each delivers sequentially to its own Snapshot, with no ordering across calls.
type Dispatcher struct {
	source           SnapshotSource
	observerTimeout  time.Duration
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewDispatcher creates a Dispatcher that publishes to the snapshots produced by source.
func NewDispatcher(source SnapshotSource, options ...Option) (*Dispatcher, error) {
	if source == nil {
		return nil, ErrNilSnapshotSource
	}

	d := &Dispatcher{source: source}

	for _, option := range options {
		if err := option(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Publish takes a Snapshot from the source and delivers notification to each of its subscriptions.
//
// Subscriptions added after the Snapshot was taken are not notified by this call.
// Subscriptions removed after it was taken, including an Observer removing itself from within Update,
// are still notified by this call. Publish never returns an error: observer failures are
// only reported through the DeliveryReport.
func (d *Dispatcher) Publish(ctx context.Context, notification Notification) DeliveryReport {
	return d.Deliver(ctx, notification, d.source.Snapshot())
}

// Deliver delivers notification to each subscription of snapshot in order.
// It is the delivery loop of Publish for a caller supplied Snapshot, e.g. for redelivery to failed handles.
//
// Failed observers are not retried within the same call. Once ctx is done, the remaining
// subscriptions are not invoked and are reported as failed with ErrDeliveryCanceled.
func (d *Dispatcher) Deliver(ctx context.Context, notification Notification, snapshot Snapshot) DeliveryReport {
	start := time.Now()

	tracing, ctx := d.startPublishTracing(ctx, notification, snapshot.Len())
	metrics := d.startPublishMetrics(ctx)

	report := DeliveryReport{
		NotificationID: notification.ID(),
		Attempted:      snapshot.Len(),
	}

	for i := 0; i < snapshot.Len(); i++ {
		subscription := snapshot.At(i)

		reason := d.deliverTo(ctx, subscription.Observer, notification)
		if reason != nil {
			report.Failures = append(report.Failures, Failure{Handle: subscription.Handle, Reason: reason})
			d.logObserverFailure(ctx, subscription.Handle, notification, reason)
			metrics.recordObserverFailure(reason)

			continue
		}

		report.Succeeded++
	}

	report.Duration = time.Since(start)

	metrics.recordPublish(report)
	tracing.finish(report)
	d.logPublishCompleted(ctx, notification, report)

	return report
}

// deliverTo invokes one Observer and classifies its outcome. It returns nil on success.
func (d *Dispatcher) deliverTo(ctx context.Context, observer Observer, notification Notification) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ErrDeliveryCanceled, ctxErr)
	}

	if d.observerTimeout <= 0 {
		return invokeObserver(ctx, observer, notification)
	}

	observerCtx, cancel := context.WithTimeout(ctx, d.observerTimeout)
	defer cancel()

	// buffered, so an abandoned observer can still complete its send and exit
	done := make(chan error, 1)

	go func() {
		done <- invokeObserver(observerCtx, observer, notification)
	}()

	select {
	case reason := <-done:
		return reason

	case <-observerCtx.Done():
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ErrDeliveryCanceled, ctxErr)
		}

		return errors.Join(ErrObserverTimeout, observerCtx.Err())
	}
}

// invokeObserver calls Update and converts an error or a panic into a failure reason.
func invokeObserver(ctx context.Context, observer Observer, notification Notification) (reason error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			reason = errors.Join(ErrObserverFailed, ErrObserverPanicked, fmt.Errorf("panic: %v", recovered))
		}
	}()

	if err := observer.Update(ctx, notification); err != nil {
		return errors.Join(ErrObserverFailed, err)
	}

	return nil
}
