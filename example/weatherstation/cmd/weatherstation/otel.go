package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	logMsgSpanExported   = "otel span"
	logMsgMetricExported = "otel metric"
)

// installOpenTelemetry sets SDK tracer and meter providers as the OpenTelemetry globals.
// Finished spans are written to logger as they end; metrics are collected and written on shutdown.
func installOpenTelemetry(logger *slog.Logger) (shutdown func()) {
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(&slogSpanExporter{logger: logger}))

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return func() {
		ctx := context.Background()

		var resourceMetrics metricdata.ResourceMetrics
		if err := reader.Collect(ctx, &resourceMetrics); err != nil {
			logger.Error("collecting otel metrics failed", "error", err.Error())
		}
		logResourceMetrics(logger, resourceMetrics)

		_ = meterProvider.Shutdown(ctx)
		_ = tracerProvider.Shutdown(ctx)
	}
}

// slogSpanExporter is a sdktrace.SpanExporter writing one record per span to a slog.Logger.
type slogSpanExporter struct {
	logger *slog.Logger
}

func (e *slogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		args := []any{
			"span", span.Name(),
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
			"status", span.Status().Code.String(),
			"duration_ms", span.EndTime().Sub(span.StartTime()).Milliseconds(),
		}

		for _, attr := range span.Attributes() {
			args = append(args, "attr."+string(attr.Key), attr.Value.Emit())
		}

		e.logger.InfoContext(ctx, logMsgSpanExported, args...)
	}

	return nil
}

func (e *slogSpanExporter) Shutdown(context.Context) error {
	return nil
}

func logResourceMetrics(logger *slog.Logger, resourceMetrics metricdata.ResourceMetrics) {
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Histogram[float64]:
				for _, point := range data.DataPoints {
					logger.Info(logMsgMetricExported, "metric", m.Name, "labels", encode(point.Attributes),
						"count", point.Count, "sum", point.Sum)
				}
			case metricdata.Sum[int64]:
				for _, point := range data.DataPoints {
					logger.Info(logMsgMetricExported, "metric", m.Name, "labels", encode(point.Attributes), "value", point.Value)
				}
			case metricdata.Gauge[float64]:
				for _, point := range data.DataPoints {
					logger.Info(logMsgMetricExported, "metric", m.Name, "labels", encode(point.Attributes), "value", point.Value)
				}
			default:
				logger.Info(logMsgMetricExported, "metric", m.Name)
			}
		}
	}
}

func encode(set attribute.Set) string {
	return set.Encoded(attribute.DefaultEncoder())
}

// traceCorrelationHandler adds trace_id and span_id of the active span to every record.
type traceCorrelationHandler struct {
	slog.Handler
}

func (h traceCorrelationHandler) Handle(ctx context.Context, record slog.Record) error {
	if spanContext := trace.SpanContextFromContext(ctx); spanContext.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanContext.TraceID().String()),
			slog.String("span_id", spanContext.SpanID().String()),
		)
	}

	return h.Handler.Handle(ctx, record)
}

func (h traceCorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceCorrelationHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h traceCorrelationHandler) WithGroup(name string) slog.Handler {
	return traceCorrelationHandler{Handler: h.Handler.WithGroup(name)}
}

var _ sdktrace.SpanExporter = (*slogSpanExporter)(nil)
