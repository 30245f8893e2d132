// Package promadapters provides a Prometheus implementation of notify.MetricsCollector.
package promadapters

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

// ErrNilRegisterer is returned when NewMetricsCollector is called without a prometheus.Registerer.
var ErrNilRegisterer = errors.New("prometheus registerer must not be nil")

// MetricsCollector implements notify.MetricsCollector with Prometheus vectors:
//   - RecordDuration -> HistogramVec observing seconds
//   - IncrementCounter -> CounterVec
//   - RecordValue -> GaugeVec
//
// A vector is created and registered on first use of a metric name, with the label names of that call.
// Later calls for the same metric with a different label set are dropped.
type MetricsCollector struct {
	registerer prometheus.Registerer
	namespace  string

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// Option configures a MetricsCollector.
type Option func(*MetricsCollector)

// WithNamespace prefixes every metric name with namespace.
func WithNamespace(namespace string) Option {
	return func(m *MetricsCollector) {
		m.namespace = namespace
	}
}

// NewMetricsCollector creates a MetricsCollector registering its vectors with registerer.
func NewMetricsCollector(registerer prometheus.Registerer, options ...Option) (*MetricsCollector, error) {
	if registerer == nil {
		return nil, ErrNilRegisterer
	}

	m := &MetricsCollector{
		registerer: registerer,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}

	for _, option := range options {
		option(m)
	}

	return m, nil
}

// RecordDuration implements notify.MetricsCollector.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	vec := m.histogramVec(metricName, labelNames(labels))
	if vec == nil {
		return
	}

	observer, err := vec.GetMetricWith(labels)
	if err != nil {
		return
	}

	observer.Observe(duration.Seconds())
}

// IncrementCounter implements notify.MetricsCollector.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	vec := m.counterVec(metricName, labelNames(labels))
	if vec == nil {
		return
	}

	counter, err := vec.GetMetricWith(labels)
	if err != nil {
		return
	}

	counter.Inc()
}

// RecordValue implements notify.MetricsCollector.
func (m *MetricsCollector) RecordValue(metricName string, value float64, labels map[string]string) {
	vec := m.gaugeVec(metricName, labelNames(labels))
	if vec == nil {
		return
	}

	gauge, err := vec.GetMetricWith(labels)
	if err != nil {
		return
	}

	gauge.Set(value)
}

func (m *MetricsCollector) histogramVec(name string, labels []string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vec, exists := m.histograms[name]; exists {
		return vec
	}

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help(name),
		Buckets:   prometheus.DefBuckets,
	}, labels)

	if err := m.registerer.Register(vec); err != nil {
		return nil
	}

	m.histograms[name] = vec

	return vec
}

func (m *MetricsCollector) counterVec(name string, labels []string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vec, exists := m.counters[name]; exists {
		return vec
	}

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help(name),
	}, labels)

	if err := m.registerer.Register(vec); err != nil {
		return nil
	}

	m.counters[name] = vec

	return vec
}

func (m *MetricsCollector) gaugeVec(name string, labels []string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vec, exists := m.gauges[name]; exists {
		return vec
	}

	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help(name),
	}, labels)

	if err := m.registerer.Register(vec); err != nil {
		return nil
	}

	m.gauges[name] = vec

	return vec
}

func labelNames(labels map[string]string) []string {
	return slices.Sorted(maps.Keys(labels))
}

func help(metricName string) string {
	switch metricName {
	case notify.MetricPublishDuration:
		return "Duration of notification publish calls in seconds"
	case notify.MetricDeliveriesAttempted:
		return "Observers the last notification was delivered to"
	case notify.MetricObserverFailures:
		return "Total isolated observer failures by failure type"
	case notify.MetricSubscriptionsActive:
		return "Active subscriptions"
	default:
		return metricName
	}
}

var _ notify.MetricsCollector = (*MetricsCollector)(nil)
