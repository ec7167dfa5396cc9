// Package metrics provides nil-safe metrics facades for the segment writer,
// log writer, segment reader, and lock, backed by a lazily-initialized
// Prometheus registry. Every facade accepts nil, matching the package's
// contract: metrics are entirely optional and cost nothing when disabled.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	regMu    sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry turns on metrics collection and creates the process-wide
// registry that every Prometheus-backed constructor in pkg/metrics/prometheus
// registers its collectors against. Safe to call more than once.
func InitRegistry() *prometheus.Registry {
	regMu.Lock()
	defer regMu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	regMu.Lock()
	defer regMu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide registry, initializing it if
// necessary. Constructors in pkg/metrics/prometheus call this to register
// their collectors.
func GetRegistry() *prometheus.Registry {
	regMu.Lock()
	defer regMu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// resetForTest clears registry state between test cases.
func resetForTest() {
	regMu.Lock()
	defer regMu.Unlock()
	registry = nil
	enabled = false
}
