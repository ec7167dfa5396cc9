package prometheus

import (
	"time"

	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterWriterMetricsConstructor(func() metrics.WriterMetrics {
		return newWriterMetrics()
	})
}

type writerMetrics struct {
	transmits        prometheus.Counter
	transmitErrors   prometheus.Counter
	transmitRecords  prometheus.Histogram
	transmitBytes    prometheus.Histogram
	transmitDuration prometheus.Histogram
	rolls            prometheus.Counter
	rollDuration     prometheus.Histogram
	pendingDrained   prometheus.Histogram
	outstanding      prometheus.Gauge
}

func newWriterMetrics() *writerMetrics {
	reg := metrics.GetRegistry()
	return &writerMetrics{
		transmits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dlog_writer_transmits_total",
			Help: "Total number of transmission units acknowledged by the segment store.",
		}),
		transmitErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dlog_writer_transmit_errors_total",
			Help: "Total number of transmission units that failed, flipping the writer errored.",
		}),
		transmitRecords: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_writer_transmit_records",
			Help:    "Number of records packed per acknowledged transmission unit.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
		transmitBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_writer_transmit_bytes",
			Help:    "Size in bytes of each acknowledged transmission unit.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}),
		transmitDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_writer_transmit_duration_seconds",
			Help:    "Segment store acknowledgement latency.",
			Buckets: prometheus.DefBuckets,
		}),
		rolls: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dlog_writer_rolls_total",
			Help: "Total number of segment rolls completed.",
		}),
		rollDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_writer_roll_duration_seconds",
			Help:    "Time to complete a segment roll and drain pending writes.",
			Buckets: prometheus.DefBuckets,
		}),
		pendingDrained: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_writer_roll_pending_drained",
			Help:    "Number of pending writes drained into the new segment after a roll.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		outstanding: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dlog_writer_outstanding_transmissions",
			Help: "Current number of in-flight (unacknowledged) transmission units.",
		}),
	}
}

func (m *writerMetrics) ObserveTransmit(records, bytes int, d time.Duration) {
	m.transmits.Inc()
	m.transmitRecords.Observe(float64(records))
	m.transmitBytes.Observe(float64(bytes))
	m.transmitDuration.Observe(d.Seconds())
}

func (m *writerMetrics) ObserveTransmitError() { m.transmitErrors.Inc() }

func (m *writerMetrics) ObserveRoll(pendingDrained int, d time.Duration) {
	m.rolls.Inc()
	m.pendingDrained.Observe(float64(pendingDrained))
	m.rollDuration.Observe(d.Seconds())
}

func (m *writerMetrics) SetOutstanding(n int) { m.outstanding.Set(float64(n)) }
