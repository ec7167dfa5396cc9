package metrics

import "time"

// ReaderMetrics observes segment reader behavior: delivered records,
// read-ahead cache fills, idle transitions, and segment opens.
type ReaderMetrics interface {
	// ObserveDelivery records one record delivered to a caller, and
	// whether it was served from the read-ahead cache or a forced
	// synchronous read.
	ObserveDelivery(fromCache bool)

	// ObserveReadAheadFill records a batched read-ahead fetch: how many
	// entries it pulled and the resulting batch size used for the next
	// fetch.
	ObserveReadAheadFill(entries int, nextBatchSize int, duration time.Duration)

	// ObserveIdle records a warn-idle or error-idle transition.
	ObserveIdle(level string)

	// ObserveSegmentOpen records opening a segment for reading, and
	// whether it was in-progress or complete at open time.
	ObserveSegmentOpen(inProgress bool)
}

// NewReaderMetrics returns a Prometheus-backed ReaderMetrics, or nil if
// metrics are disabled.
func NewReaderMetrics() ReaderMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusReaderMetrics()
}

var newPrometheusReaderMetrics func() ReaderMetrics

// RegisterReaderMetricsConstructor is called by
// pkg/metrics/prometheus/reader.go during package initialization.
func RegisterReaderMetricsConstructor(constructor func() ReaderMetrics) {
	newPrometheusReaderMetrics = constructor
}

// ObserveDelivery is a nil-safe helper.
func ObserveDelivery(m ReaderMetrics, fromCache bool) {
	if m != nil {
		m.ObserveDelivery(fromCache)
	}
}

// ObserveReadAheadFill is a nil-safe helper.
func ObserveReadAheadFill(m ReaderMetrics, entries, nextBatchSize int, d time.Duration) {
	if m != nil {
		m.ObserveReadAheadFill(entries, nextBatchSize, d)
	}
}

// ObserveIdle is a nil-safe helper.
func ObserveIdle(m ReaderMetrics, level string) {
	if m != nil {
		m.ObserveIdle(level)
	}
}

// ObserveSegmentOpen is a nil-safe helper.
func ObserveSegmentOpen(m ReaderMetrics, inProgress bool) {
	if m != nil {
		m.ObserveSegmentOpen(inProgress)
	}
}
