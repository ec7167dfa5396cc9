package metrics

import "time"

// WriterMetrics observes segment writer behavior: transmission unit
// packing, acknowledgement latency, rolls, and sticky-error transitions.
// Pass nil anywhere a WriterMetrics is accepted to disable collection with
// zero overhead.
type WriterMetrics interface {
	// ObserveTransmit records one acknowledged transmission unit: how many
	// records it packed and how long the segment store took to
	// acknowledge it.
	ObserveTransmit(records int, bytes int, duration time.Duration)

	// ObserveTransmitError records a failed transmission, flipping the
	// writer sticky-errored.
	ObserveTransmitError()

	// ObserveRoll records a completed segment roll and how long the
	// pending-write drain took.
	ObserveRoll(pendingDrained int, duration time.Duration)

	// SetOutstanding reports the writer's current in-flight transmission
	// count (0 or 1 under the single-in-flight discipline). Every writer
	// sets the same gauge, so it shows the most recently reported count.
	SetOutstanding(n int)
}

// NewWriterMetrics returns a Prometheus-backed WriterMetrics, or nil if
// metrics are disabled.
func NewWriterMetrics() WriterMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusWriterMetrics()
}

// newPrometheusWriterMetrics is set by pkg/metrics/prometheus/writer.go's
// init(), avoiding an import cycle between the two packages.
var newPrometheusWriterMetrics func() WriterMetrics

// RegisterWriterMetricsConstructor is called by
// pkg/metrics/prometheus/writer.go during package initialization.
func RegisterWriterMetricsConstructor(constructor func() WriterMetrics) {
	newPrometheusWriterMetrics = constructor
}

// ObserveTransmit is a nil-safe helper for callers holding a WriterMetrics
// value that might be nil.
func ObserveTransmit(m WriterMetrics, records, bytes int, d time.Duration) {
	if m != nil {
		m.ObserveTransmit(records, bytes, d)
	}
}

// ObserveTransmitError is the nil-safe counterpart for transmit failures.
func ObserveTransmitError(m WriterMetrics) {
	if m != nil {
		m.ObserveTransmitError()
	}
}

// ObserveRoll is the nil-safe helper for segment rolls.
func ObserveRoll(m WriterMetrics, pendingDrained int, d time.Duration) {
	if m != nil {
		m.ObserveRoll(pendingDrained, d)
	}
}

// SetOutstanding is the nil-safe helper for the in-flight gauge.
func SetOutstanding(m WriterMetrics, n int) {
	if m != nil {
		m.SetOutstanding(n)
	}
}
