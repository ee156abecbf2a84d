package sdbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsScsiCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordScsiRead(512, 1_000, true)
	m.RecordScsiRead(0, 1_000, false)
	m.RecordScsiWrite(1024, 2_000, true)
	m.RecordScsiFlush(500)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.ScsiReadOps)
	assert.EqualValues(t, 512, snap.ScsiReadBytes)
	assert.EqualValues(t, 1, snap.ScsiReadErrors)
	assert.EqualValues(t, 1, snap.ScsiWriteOps)
	assert.EqualValues(t, 1024, snap.ScsiWriteBytes)
	assert.EqualValues(t, 1, snap.ScsiFlushOps)
}

func TestMetricsCacheHitRate(t *testing.T) {
	m := NewMetrics()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.CacheHits)
	assert.EqualValues(t, 1, snap.CacheMisses)
	assert.InDelta(t, 0.75, snap.CacheHitRate, 0.0001)
}

func TestMetricsArbiterCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordArbiterTransition()
	m.RecordArbiterTransition()
	m.RecordArbiterBusy()
	m.RecordArbiterFatal()

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.ArbiterTransitions)
	assert.EqualValues(t, 1, snap.ArbiterBusyRejections)
	assert.EqualValues(t, 1, snap.ArbiterFatalErrors)
}

func TestMetricsUploadCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordUploadChunk(32*1024, 32*1024)
	m.RecordUploadChunk(16*1024, 16*1024)
	m.RecordUploadResult(true)

	snap := m.Snapshot()
	assert.EqualValues(t, 48*1024, snap.UploadBytesIn)
	assert.EqualValues(t, 2, snap.UploadChunks)
	assert.EqualValues(t, 1, snap.UploadsOK)
}

func TestMetricsUptimeFreezesAfterStop(t *testing.T) {
	m := NewMetrics()
	time.Sleep(2 * time.Millisecond)
	m.Stop()
	first := m.Snapshot().UptimeNs
	time.Sleep(2 * time.Millisecond)
	second := m.Snapshot().UptimeNs
	assert.Equal(t, first, second)
}

func TestMetricsObserverDelegates(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveScsiRead(512, 1000, true)
	obs.ObserveCache(true)
	obs.ObserveArbiterTransition()
	obs.ObserveUploadChunk(100, 100)
	obs.ObserveUploadResult(false)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.ScsiReadOps)
	assert.EqualValues(t, 1, snap.CacheHits)
	assert.EqualValues(t, 1, snap.ArbiterTransitions)
	assert.EqualValues(t, 1, snap.UploadChunks)
	assert.EqualValues(t, 1, snap.UploadsFailed)
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var o NoOpObserver
	o.ObserveScsiRead(1, 1, true)
	o.ObserveScsiWrite(1, 1, true)
	o.ObserveScsiFlush(1)
	o.ObserveCache(true)
	o.ObserveArbiterTransition()
	o.ObserveArbiterBusy()
	o.ObserveArbiterFatal()
	o.ObserveUploadChunk(1, 1)
	o.ObserveUploadResult(true)
}
