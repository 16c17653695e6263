package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// DeviceBufferMetrics holds the collectors for the audio device buffer.
// All recording methods are safe to call from real-time goroutines.
type DeviceBufferMetrics struct {
	registry *prometheus.Registry

	callbacks         *prometheus.CounterVec
	samples           *prometheus.CounterVec
	peakLevel         *prometheus.GaugeVec
	measuredRate      *prometheus.GaugeVec
	configuredRate    *prometheus.GaugeVec
	peakMeasurements  *prometheus.CounterVec
	active            *prometheus.GaugeVec
	sessionDuration   *prometheus.HistogramVec
	recordedOnlyZeros *prometheus.CounterVec
	threadViolations  *prometheus.CounterVec
	droppedMessages   prometheus.Counter
	transportErrors   *prometheus.CounterVec
	reports           prometheus.Counter

	collectors []prometheus.Collector
}

// NewDeviceBufferMetrics creates and registers the device buffer collectors.
func NewDeviceBufferMetrics(registry *prometheus.Registry) (*DeviceBufferMetrics, error) {
	m := &DeviceBufferMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register device buffer metrics: %w", err)
	}
	return m, nil
}

func (m *DeviceBufferMetrics) initMetrics() {
	m.callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adb_callbacks_total",
		Help: "Audio callbacks counted by the periodic reporter",
	}, []string{"direction"})

	m.samples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adb_samples_total",
		Help: "Audio frames counted by the periodic reporter",
	}, []string{"direction"})

	m.peakLevel = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adb_peak_level",
		Help: "Peak absolute 16-bit sample magnitude in the last reporting window",
	}, []string{"direction"})

	m.measuredRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adb_measured_sample_rate_hz",
		Help: "Sample rate derived from frame counts over the last reporting window",
	}, []string{"direction"})

	m.configuredRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adb_configured_sample_rate_hz",
		Help: "Sample rate configured for the direction",
	}, []string{"direction"})

	m.peakMeasurements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adb_peak_measurements_total",
		Help: "Number of buffers scanned for their peak level",
	}, []string{"direction"})

	m.active = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adb_direction_active",
		Help: "1 while the direction is active",
	}, []string{"direction"})

	m.sessionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adb_session_duration_seconds",
		Help:    "Duration of completed recording and playout sessions",
		Buckets: sessionDurationBuckets,
	}, []string{"direction"})

	m.recordedOnlyZeros = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adb_recorded_only_zeros_total",
		Help: "Recording sessions long enough to classify, by whether only silence was recorded",
	}, []string{"only_zeros"})

	m.threadViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adb_thread_violations_total",
		Help: "Calls made from a goroutine other than the one bound to the direction",
	}, []string{"direction"})

	m.droppedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adb_worker_dropped_messages_total",
		Help: "Stats messages dropped because the worker queue was full",
	})

	m.transportErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adb_transport_errors_total",
		Help: "Failures reported by the audio transport",
	}, []string{"kind"})

	m.reports = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adb_reports_total",
		Help: "Periodic report rounds emitted",
	})

	m.collectors = []prometheus.Collector{
		m.callbacks, m.samples, m.peakLevel, m.measuredRate, m.configuredRate,
		m.peakMeasurements, m.active, m.sessionDuration, m.recordedOnlyZeros,
		m.threadViolations, m.droppedMessages, m.transportErrors, m.reports,
	}
}

// Describe implements the prometheus.Collector interface
func (m *DeviceBufferMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *DeviceBufferMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordReport applies one periodic report window for a direction.
func (m *DeviceBufferMetrics) RecordReport(direction string, callbacks, samples uint64, configuredRate, measuredRate int, peak int16) {
	m.callbacks.WithLabelValues(direction).Add(float64(callbacks))
	m.samples.WithLabelValues(direction).Add(float64(samples))
	m.configuredRate.WithLabelValues(direction).Set(float64(configuredRate))
	m.measuredRate.WithLabelValues(direction).Set(float64(measuredRate))
	m.peakLevel.WithLabelValues(direction).Set(float64(peak))
}

// IncReports counts one emitted report round.
func (m *DeviceBufferMetrics) IncReports() {
	m.reports.Inc()
}

// IncPeakMeasurements counts a peak scan.
func (m *DeviceBufferMetrics) IncPeakMeasurements(direction string) {
	m.peakMeasurements.WithLabelValues(direction).Inc()
}

// SetActive marks a direction active or inactive.
func (m *DeviceBufferMetrics) SetActive(direction string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.active.WithLabelValues(direction).Set(v)
}

// ObserveSession records a finished session.
func (m *DeviceBufferMetrics) ObserveSession(direction string, seconds float64) {
	m.sessionDuration.WithLabelValues(direction).Observe(seconds)
}

// RecordOnlyZeros records the silence classification of a recording session.
func (m *DeviceBufferMetrics) RecordOnlyZeros(onlyZeros bool) {
	m.recordedOnlyZeros.WithLabelValues(strconv.FormatBool(onlyZeros)).Inc()
}

// IncThreadViolations counts a thread-affinity violation.
func (m *DeviceBufferMetrics) IncThreadViolations(direction string) {
	m.threadViolations.WithLabelValues(direction).Inc()
}

// IncDroppedMessages counts a message the worker could not accept.
func (m *DeviceBufferMetrics) IncDroppedMessages() {
	m.droppedMessages.Inc()
}

// IncTransportErrors counts a transport failure of the given kind.
func (m *DeviceBufferMetrics) IncTransportErrors(kind string) {
	m.transportErrors.WithLabelValues(kind).Inc()
}
