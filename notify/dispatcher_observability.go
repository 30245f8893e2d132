package notify

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

const (
	logMsgOperation         = "notify operation: "
	logMsgPublishCompleted  = "publish completed"
	logMsgObserverFailed    = "observer failed"
	logAttrError            = "error"
	logAttrHandle           = "handle"
	logAttrNotificationID   = "notification_id"
	logAttrNotificationType = "notification_type"
	logAttrAttempted        = "attempted"
	logAttrSucceeded        = "succeeded"
	logAttrFailed           = "failed"
	logAttrDurationMS       = "duration_ms"

	// MetricPublishDuration is the duration of one publish call.
	MetricPublishDuration = "notify_publish_duration_seconds"

	// MetricDeliveriesAttempted is the number of observers a publish call delivered to.
	MetricDeliveriesAttempted = "notify_deliveries_attempted"

	// MetricObserverFailures counts isolated observer failures, labeled by failure type.
	MetricObserverFailures = "notify_observer_failures_total"

	// MetricSubscriptionsActive is the number of active subscriptions of a Notifier.
	MetricSubscriptionsActive = "notify_subscriptions_active"

	// SpanNamePublish is the name of the span created for each publish call.
	SpanNamePublish = "notify.publish"

	labelOperation   = "operation"
	labelStatus      = "status"
	labelFailureType = "failure_type"

	operationPublish   = "publish"
	operationSubscribe = "subscribe"

	statusSuccess = "success"
	statusError   = "error"

	// FailureTypeObserverError labels failures returned by an Observer.
	FailureTypeObserverError = "observer_error"

	// FailureTypeObserverPanic labels observers that panicked.
	FailureTypeObserverPanic = "observer_panic"

	// FailureTypeObserverTimeout labels observers that exceeded the per-observer timeout.
	FailureTypeObserverTimeout = "observer_timeout"

	// FailureTypeDeliveryCanceled labels observers skipped because the publish context ended.
	FailureTypeDeliveryCanceled = "delivery_canceled"

	spanAttrOperation        = "operation"
	spanAttrNotificationType = "notification_type"
	spanAttrNotificationID   = "notification_id"
	spanAttrAttempted        = "attempted"
	spanAttrSucceeded        = "succeeded"
	spanAttrFailed           = "failed"
	spanAttrDurationMS       = "duration_ms"
)

// FailureType classifies a failure reason into one of the FailureType* labels.
func FailureType(reason error) string {
	switch {
	case errors.Is(reason, ErrDeliveryCanceled):
		return FailureTypeDeliveryCanceled
	case errors.Is(reason, ErrObserverTimeout):
		return FailureTypeObserverTimeout
	case errors.Is(reason, ErrObserverPanicked):
		return FailureTypeObserverPanic
	default:
		return FailureTypeObserverError
	}
}

// === Logging ===

// logPublishCompleted logs the outcome of a publish call at info level to the configured loggers.
func (d *Dispatcher) logPublishCompleted(ctx context.Context, notification Notification, report DeliveryReport) {
	if d.logger == nil && d.contextualLogger == nil {
		return
	}

	args := []any{
		logAttrNotificationID, notification.ID().String(),
		logAttrNotificationType, notification.Type(),
		logAttrAttempted, report.Attempted,
		logAttrSucceeded, report.Succeeded,
		logAttrFailed, report.Failed(),
		logAttrDurationMS, toMilliseconds(report.Duration),
	}

	if d.logger != nil {
		d.logger.Info(logMsgOperation+logMsgPublishCompleted, args...)
	}

	if d.contextualLogger != nil {
		d.contextualLogger.InfoContext(ctx, logMsgOperation+logMsgPublishCompleted, args...)
	}
}

// logObserverFailure logs one isolated observer failure at warn level to the configured loggers.
func (d *Dispatcher) logObserverFailure(ctx context.Context, handle Handle, notification Notification, reason error) {
	if d.logger == nil && d.contextualLogger == nil {
		return
	}

	args := []any{
		logAttrError, reason.Error(),
		logAttrHandle, handle.String(),
		logAttrNotificationType, notification.Type(),
	}

	if d.logger != nil {
		d.logger.Warn(logMsgObserverFailed, args...)
	}

	if d.contextualLogger != nil {
		d.contextualLogger.WarnContext(ctx, logMsgObserverFailed, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics ===

// recordDurationMetricsContext records duration metrics with context if the collector supports it.
func (d *Dispatcher) recordDurationMetricsContext(ctx context.Context, metricName string, duration time.Duration, labels map[string]string) {
	if d.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := d.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
		return
	}

	d.metricsCollector.RecordDuration(metricName, duration, labels)
}

// recordValueMetricsContext records value metrics with context if the collector supports it.
func (d *Dispatcher) recordValueMetricsContext(ctx context.Context, metricName string, value float64, labels map[string]string) {
	if d.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := d.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
		return
	}

	d.metricsCollector.RecordValue(metricName, value, labels)
}

// incrementCounterContext increments a counter with context if the collector supports it.
func (d *Dispatcher) incrementCounterContext(ctx context.Context, metricName string, labels map[string]string) {
	if d.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := d.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
		return
	}

	d.metricsCollector.IncrementCounter(metricName, labels)
}

// recordActiveSubscriptions records the number of active subscriptions if the collector is configured.
func (d *Dispatcher) recordActiveSubscriptions(count int) {
	if d.metricsCollector == nil {
		return
	}

	d.metricsCollector.RecordValue(MetricSubscriptionsActive, float64(count), map[string]string{
		labelOperation: operationSubscribe,
	})
}

// publishMetricsObserver encapsulates the metrics collection for one publish call.
type publishMetricsObserver struct {
	d   *Dispatcher
	ctx context.Context
}

// startPublishMetrics creates a new metrics observer for a publish call.
func (d *Dispatcher) startPublishMetrics(ctx context.Context) *publishMetricsObserver {
	return &publishMetricsObserver{d: d, ctx: ctx}
}

// recordObserverFailure counts one isolated observer failure by its type.
func (pmo *publishMetricsObserver) recordObserverFailure(reason error) {
	pmo.d.incrementCounterContext(pmo.ctx, MetricObserverFailures, map[string]string{
		labelOperation:   operationPublish,
		labelFailureType: FailureType(reason),
	})
}

// recordPublish records duration and attempted deliveries of a finished publish call.
func (pmo *publishMetricsObserver) recordPublish(report DeliveryReport) {
	labels := map[string]string{
		labelOperation: operationPublish,
		labelStatus:    publishStatus(report),
	}

	pmo.d.recordDurationMetricsContext(pmo.ctx, MetricPublishDuration, report.Duration, labels)
	pmo.d.recordValueMetricsContext(pmo.ctx, MetricDeliveriesAttempted, float64(report.Attempted), labels)
}

// === Tracing ===

// publishTracingObserver encapsulates tracing span lifecycle management for one publish call.
type publishTracingObserver struct {
	d    *Dispatcher
	span SpanContext
}

// startPublishTracing starts a publish span if the tracing collector is configured.
func (d *Dispatcher) startPublishTracing(
	ctx context.Context,
	notification Notification,
	subscriptionCount int,
) (*publishTracingObserver, context.Context) {

	if d.tracingCollector == nil {
		return &publishTracingObserver{d: d}, ctx
	}

	spanCtx, span := d.tracingCollector.StartSpan(ctx, SpanNamePublish, map[string]string{
		spanAttrOperation:        operationPublish,
		spanAttrNotificationType: notification.Type(),
		spanAttrNotificationID:   notification.ID().String(),
		spanAttrAttempted:        strconv.Itoa(subscriptionCount),
	})

	return &publishTracingObserver{d: d, span: span}, spanCtx
}

// finish completes the publish span with the delivery outcome.
func (pto *publishTracingObserver) finish(report DeliveryReport) {
	if pto.span == nil || pto.d.tracingCollector == nil {
		return
	}

	status := publishStatus(report)
	attrs := map[string]string{
		spanAttrSucceeded:  strconv.Itoa(report.Succeeded),
		spanAttrFailed:     strconv.Itoa(report.Failed()),
		spanAttrDurationMS: strconv.FormatFloat(toMilliseconds(report.Duration), 'f', 2, 64),
	}

	pto.span.SetStatus(status)
	for key, value := range attrs {
		pto.span.AddAttribute(key, value)
	}

	pto.d.tracingCollector.FinishSpan(pto.span, status, attrs)
}

func publishStatus(report DeliveryReport) string {
	if report.OK() {
		return statusSuccess
	}

	return statusError
}
