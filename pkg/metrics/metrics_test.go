package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledByDefault(t *testing.T) {
	resetForTest()
	assert.False(t, IsEnabled())
	assert.Nil(t, NewWriterMetrics())
	assert.Nil(t, NewReaderMetrics())
	assert.Nil(t, NewLockMetrics())
}

func TestNilSafeHelpers(t *testing.T) {
	resetForTest()
	// None of these should panic with a nil metrics value.
	ObserveTransmit(nil, 1, 100, 0)
	ObserveTransmitError(nil)
	ObserveRoll(nil, 1, 0)
	SetOutstanding(nil, 1)
	ObserveDelivery(nil, true)
	ObserveReadAheadFill(nil, 1, 2, 0)
	ObserveIdle(nil, "warn")
	ObserveSegmentOpen(nil, true)
	ObserveAcquire(nil, 1, 1)
	ObserveSessionExpired(nil)
}

func TestInitRegistryEnables(t *testing.T) {
	resetForTest()
	reg := InitRegistry()
	assert.NotNil(t, reg)
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())
	resetForTest()
}
