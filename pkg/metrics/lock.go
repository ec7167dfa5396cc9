package metrics

// LockMetrics observes distributed lock acquisition and session health.
type LockMetrics interface {
	// ObserveAcquire records a completed Acquire call, successful or not.
	ObserveAcquire(acquiredMillis int64, contenders int)

	// ObserveSessionExpired records a coordinator session loss broadcast
	// to dependents.
	ObserveSessionExpired()
}

// NewLockMetrics returns a Prometheus-backed LockMetrics, or nil if metrics
// are disabled.
func NewLockMetrics() LockMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusLockMetrics()
}

var newPrometheusLockMetrics func() LockMetrics

// RegisterLockMetricsConstructor is called by
// pkg/metrics/prometheus/lock.go during package initialization.
func RegisterLockMetricsConstructor(constructor func() LockMetrics) {
	newPrometheusLockMetrics = constructor
}

// ObserveAcquire is a nil-safe helper.
func ObserveAcquire(m LockMetrics, acquiredMillis int64, contenders int) {
	if m != nil {
		m.ObserveAcquire(acquiredMillis, contenders)
	}
}

// ObserveSessionExpired is a nil-safe helper.
func ObserveSessionExpired(m LockMetrics) {
	if m != nil {
		m.ObserveSessionExpired()
	}
}
