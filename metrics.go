package sdbridge

import (
	"sync/atomic"
	"time"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds for
// SCSI block operations, logarithmically spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks operational statistics across the three subsystems that
// share the SD card: the SCSI block adapter, the arbiter, and the upload
// pipeline. Modeled on the teacher's atomic-counter Metrics.
type Metrics struct {
	// SCSI block adapter
	ScsiReadOps    atomic.Uint64
	ScsiWriteOps   atomic.Uint64
	ScsiFlushOps   atomic.Uint64
	ScsiReadBytes  atomic.Uint64
	ScsiWriteBytes atomic.Uint64
	ScsiReadErrors atomic.Uint64
	ScsiWriteErrors atomic.Uint64

	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Arbiter
	ArbiterTransitions     atomic.Uint64
	ArbiterBusyRejections  atomic.Uint64
	ArbiterFatalErrors     atomic.Uint64

	// Upload pipeline
	UploadBytesIn   atomic.Uint64
	UploadBytesOut  atomic.Uint64
	UploadChunks    atomic.Uint64
	UploadsOK       atomic.Uint64
	UploadsFailed   atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordScsiRead records a SCSI Read10 outcome.
func (m *Metrics) RecordScsiRead(bytes uint64, latencyNs uint64, success bool) {
	m.ScsiReadOps.Add(1)
	if success {
		m.ScsiReadBytes.Add(bytes)
	} else {
		m.ScsiReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordScsiWrite records a SCSI Write10 outcome.
func (m *Metrics) RecordScsiWrite(bytes uint64, latencyNs uint64, success bool) {
	m.ScsiWriteOps.Add(1)
	if success {
		m.ScsiWriteBytes.Add(bytes)
	} else {
		m.ScsiWriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordScsiFlush records a SynchronizeCache outcome.
func (m *Metrics) RecordScsiFlush(latencyNs uint64) {
	m.ScsiFlushOps.Add(1)
	m.recordLatency(latencyNs)
}

// RecordCacheHit/RecordCacheMiss track SectorCache/ReadAhead effectiveness.
func (m *Metrics) RecordCacheHit()  { m.CacheHits.Add(1) }
func (m *Metrics) RecordCacheMiss() { m.CacheMisses.Add(1) }

// RecordArbiterTransition records a successful mode transition.
func (m *Metrics) RecordArbiterTransition() { m.ArbiterTransitions.Add(1) }

// RecordArbiterBusy records a transition refused because a guard failed.
func (m *Metrics) RecordArbiterBusy() { m.ArbiterBusyRejections.Add(1) }

// RecordArbiterFatal records a transition that left Mode at Error.
func (m *Metrics) RecordArbiterFatal() { m.ArbiterFatalErrors.Add(1) }

// RecordUploadChunk records one consumer write of an upload.
func (m *Metrics) RecordUploadChunk(bytesIn, bytesOut uint64) {
	m.UploadBytesIn.Add(bytesIn)
	m.UploadBytesOut.Add(bytesOut)
	m.UploadChunks.Add(1)
}

// RecordUploadResult records the terminal outcome of one upload.
func (m *Metrics) RecordUploadResult(ok bool) {
	if ok {
		m.UploadsOK.Add(1)
	} else {
		m.UploadsFailed.Add(1)
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the core as stopped, fixing UptimeNs for later snapshots.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic view of Metrics.
type MetricsSnapshot struct {
	ScsiReadOps, ScsiWriteOps, ScsiFlushOps       uint64
	ScsiReadBytes, ScsiWriteBytes                 uint64
	ScsiReadErrors, ScsiWriteErrors                uint64
	CacheHits, CacheMisses                         uint64
	CacheHitRate                                   float64
	ArbiterTransitions, ArbiterBusyRejections      uint64
	ArbiterFatalErrors                             uint64
	UploadBytesIn, UploadBytesOut, UploadChunks    uint64
	UploadsOK, UploadsFailed                       uint64
	AvgLatencyNs                                   uint64
	UptimeNs                                       uint64
	LatencyHistogram                               [numLatencyBuckets]uint64
}

// Snapshot takes a consistent-enough snapshot of the metrics for reporting.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		ScsiReadOps:        m.ScsiReadOps.Load(),
		ScsiWriteOps:       m.ScsiWriteOps.Load(),
		ScsiFlushOps:       m.ScsiFlushOps.Load(),
		ScsiReadBytes:      m.ScsiReadBytes.Load(),
		ScsiWriteBytes:     m.ScsiWriteBytes.Load(),
		ScsiReadErrors:     m.ScsiReadErrors.Load(),
		ScsiWriteErrors:    m.ScsiWriteErrors.Load(),
		CacheHits:          m.CacheHits.Load(),
		CacheMisses:        m.CacheMisses.Load(),
		ArbiterTransitions: m.ArbiterTransitions.Load(),
		ArbiterBusyRejections: m.ArbiterBusyRejections.Load(),
		ArbiterFatalErrors: m.ArbiterFatalErrors.Load(),
		UploadBytesIn:      m.UploadBytesIn.Load(),
		UploadBytesOut:     m.UploadBytesOut.Load(),
		UploadChunks:       m.UploadChunks.Load(),
		UploadsOK:          m.UploadsOK.Load(),
		UploadsFailed:      m.UploadsFailed.Load(),
	}

	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(total)
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		s.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		s.UptimeNs = uint64(stop - start)
	} else {
		s.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		s.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return s
}

// Observer is a pluggable sink for metrics events, mirroring the teacher's
// Observer interface but scoped to SCSI/arbiter/upload events instead of
// ublk queue I/O. It is an alias of interfaces.Observer so internal
// packages (which cannot import this root package) can accept the same
// interface without a cycle.
type Observer = interfaces.Observer

// NoOpObserver discards every event.
type NoOpObserver = interfaces.NoOpObserver

// MetricsObserver implements Observer by recording into a *Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveScsiRead(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordScsiRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveScsiWrite(bytes, latencyNs uint64, success bool) {
	o.metrics.RecordScsiWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveScsiFlush(latencyNs uint64) {
	o.metrics.RecordScsiFlush(latencyNs)
}

func (o *MetricsObserver) ObserveCache(hit bool) {
	if hit {
		o.metrics.RecordCacheHit()
	} else {
		o.metrics.RecordCacheMiss()
	}
}

func (o *MetricsObserver) ObserveArbiterTransition() { o.metrics.RecordArbiterTransition() }
func (o *MetricsObserver) ObserveArbiterBusy()        { o.metrics.RecordArbiterBusy() }
func (o *MetricsObserver) ObserveArbiterFatal()        { o.metrics.RecordArbiterFatal() }

func (o *MetricsObserver) ObserveUploadChunk(bytesIn, bytesOut uint64) {
	o.metrics.RecordUploadChunk(bytesIn, bytesOut)
}

func (o *MetricsObserver) ObserveUploadResult(ok bool) {
	o.metrics.RecordUploadResult(ok)
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = (*NoOpObserver)(nil)
)
