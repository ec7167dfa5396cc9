package prometheus

import (
	"time"

	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterReaderMetricsConstructor(func() metrics.ReaderMetrics {
		return newReaderMetrics()
	})
}

type readerMetrics struct {
	deliveries       *prometheus.CounterVec
	readAheadFills   prometheus.Counter
	readAheadEntries prometheus.Histogram
	readAheadBatch   prometheus.Histogram
	readAheadLatency prometheus.Histogram
	idleEvents       *prometheus.CounterVec
	segmentOpens     *prometheus.CounterVec
}

func newReaderMetrics() *readerMetrics {
	reg := metrics.GetRegistry()
	return &readerMetrics{
		deliveries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dlog_reader_deliveries_total",
			Help: "Total number of records delivered to callers, by source.",
		}, []string{"source"}), // "cache" or "sync"
		readAheadFills: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dlog_reader_readahead_fills_total",
			Help: "Total number of batched read-ahead fetches issued.",
		}),
		readAheadEntries: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_reader_readahead_entries",
			Help:    "Number of entries returned per read-ahead fetch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		readAheadBatch: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_reader_readahead_next_batch_size",
			Help:    "Batch size chosen for the following read-ahead fetch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		readAheadLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_reader_readahead_fill_duration_seconds",
			Help:    "Duration of each read-ahead fetch.",
			Buckets: prometheus.DefBuckets,
		}),
		idleEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dlog_reader_idle_events_total",
			Help: "Total number of idle-threshold transitions, by level.",
		}, []string{"level"}), // "warn" or "error"
		segmentOpens: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dlog_reader_segment_opens_total",
			Help: "Total number of segments opened for reading, by state at open time.",
		}, []string{"state"}), // "in_progress" or "complete"
	}
}

func (m *readerMetrics) ObserveDelivery(fromCache bool) {
	if fromCache {
		m.deliveries.WithLabelValues("cache").Inc()
	} else {
		m.deliveries.WithLabelValues("sync").Inc()
	}
}

func (m *readerMetrics) ObserveReadAheadFill(entries, nextBatchSize int, d time.Duration) {
	m.readAheadFills.Inc()
	m.readAheadEntries.Observe(float64(entries))
	m.readAheadBatch.Observe(float64(nextBatchSize))
	m.readAheadLatency.Observe(d.Seconds())
}

func (m *readerMetrics) ObserveIdle(level string) { m.idleEvents.WithLabelValues(level).Inc() }

func (m *readerMetrics) ObserveSegmentOpen(inProgress bool) {
	if inProgress {
		m.segmentOpens.WithLabelValues("in_progress").Inc()
	} else {
		m.segmentOpens.WithLabelValues("complete").Inc()
	}
}
