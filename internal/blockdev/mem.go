// Package blockdev provides BlockDevice implementations: an in-memory
// backend for tests and simulation, and a pread/pwrite file-backed device
// (O_DIRECT on request) for real SD-card/loop-file storage.
package blockdev

import (
	"fmt"
	"sync"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// shardSectors is the granularity of the internal RWMutex sharding. Sized in
// sectors rather than bytes so it scales with whatever SectorSize is
// configured; 128 sectors keeps shard counts reasonable for typical
// card sizes while still giving parallel SCSI queues (if ever added) real
// concurrency.
const shardSectors = 128

// Memory is a RAM-backed BlockDevice, used by sdbridged's memory backend and
// by tests that exercise the cache/SCSI stack without real storage.
type Memory struct {
	data       []byte
	sectorSize uint16
	numSectors uint32
	shards     []sync.RWMutex
}

// NewMemory creates a zero-filled in-memory block device of numSectors
// sectors, each sectorSize bytes.
func NewMemory(sectorSize uint16, numSectors uint32) *Memory {
	numShards := (int(numSectors) + shardSectors - 1) / shardSectors
	if numShards == 0 {
		numShards = 1
	}
	return &Memory{
		data:       make([]byte, int64(sectorSize)*int64(numSectors)),
		sectorSize: sectorSize,
		numSectors: numSectors,
		shards:     make([]sync.RWMutex, numShards),
	}
}

func (m *Memory) shardRange(lba, count uint32) (start, end int) {
	start = int(lba) / shardSectors
	end = int(lba+count-1) / shardSectors
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

// ReadSectors implements interfaces.BlockDevice.
func (m *Memory) ReadSectors(lba uint32, count uint32, buf []byte) error {
	if err := m.checkRange(lba, count, buf); err != nil {
		return err
	}
	start, end := m.shardRange(lba, count)
	for i := start; i <= end; i++ {
		m.shards[i].RLock()
	}
	off := int64(lba) * int64(m.sectorSize)
	n := int64(count) * int64(m.sectorSize)
	copy(buf[:n], m.data[off:off+n])
	for i := start; i <= end; i++ {
		m.shards[i].RUnlock()
	}
	return nil
}

// WriteSectors implements interfaces.BlockDevice.
func (m *Memory) WriteSectors(lba uint32, count uint32, buf []byte) error {
	if err := m.checkRange(lba, count, buf); err != nil {
		return err
	}
	start, end := m.shardRange(lba, count)
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	off := int64(lba) * int64(m.sectorSize)
	n := int64(count) * int64(m.sectorSize)
	copy(m.data[off:off+n], buf[:n])
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}
	return nil
}

func (m *Memory) checkRange(lba, count uint32, buf []byte) error {
	if count == 0 {
		return fmt.Errorf("blockdev: zero sector count")
	}
	if uint64(lba)+uint64(count) > uint64(m.numSectors) {
		return fmt.Errorf("blockdev: lba range [%d,%d) exceeds device of %d sectors", lba, lba+count, m.numSectors)
	}
	want := int(count) * int(m.sectorSize)
	if len(buf) < want {
		return fmt.Errorf("blockdev: buffer too small: have %d, need %d", len(buf), want)
	}
	return nil
}

// SectorSize implements interfaces.BlockDevice.
func (m *Memory) SectorSize() uint16 { return m.sectorSize }

// SectorCount implements interfaces.BlockDevice.
func (m *Memory) SectorCount() uint32 { return m.numSectors }

var _ interfaces.BlockDevice = (*Memory)(nil)

// Zero overwrites every sector with zero bytes.
func (m *Memory) Zero() {
	start, end := 0, len(m.shards)-1
	for i := start; i <= end; i++ {
		m.shards[i].Lock()
	}
	for i := range m.data {
		m.data[i] = 0
	}
	for i := start; i <= end; i++ {
		m.shards[i].Unlock()
	}
}
