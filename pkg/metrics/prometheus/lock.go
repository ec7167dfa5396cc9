package prometheus

import (
	"github.com/dlogio/dlog/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterLockMetricsConstructor(func() metrics.LockMetrics {
		return newLockMetrics()
	})
}

type lockMetrics struct {
	acquireDuration prometheus.Histogram
	contenders      prometheus.Histogram
	sessionExpires  prometheus.Counter
}

func newLockMetrics() *lockMetrics {
	reg := metrics.GetRegistry()
	return &lockMetrics{
		acquireDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_lock_acquire_duration_milliseconds",
			Help:    "Time spent waiting to become the lowest-sequence lock contender.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
		}),
		contenders: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dlog_lock_contenders",
			Help:    "Number of contenders observed at acquisition time.",
			Buckets: []float64{1, 2, 3, 5, 10},
		}),
		sessionExpires: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dlog_lock_session_expired_total",
			Help: "Total number of coordinator session expirations broadcast to dependents.",
		}),
	}
}

func (m *lockMetrics) ObserveAcquire(acquiredMillis int64, contenders int) {
	m.acquireDuration.Observe(float64(acquiredMillis))
	m.contenders.Observe(float64(contenders))
}

func (m *lockMetrics) ObserveSessionExpired() { m.sessionExpires.Inc() }
