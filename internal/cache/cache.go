// Package cache implements the SectorCache: a write-back cache of exactly
// one sector plus an N-sector read-ahead window, used by the USB block
// adapter to serve partial-sector SCSI transfers and small sequential
// reads without a whole-sector round trip to the BlockDevice on every
// access (spec §4.2).
package cache

import (
	"fmt"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// dirtySector is the single write-back cache entry.
type dirtySector struct {
	valid bool
	dirty bool
	lba   uint32
	data  []byte
}

// readAhead is the lazily-populated prefetch window.
type readAhead struct {
	valid   bool
	baseLba uint32
	count   uint16
	data    []byte
}

func (r *readAhead) covers(lba uint32, sectorCount uint32) bool {
	if !r.valid {
		return false
	}
	end := r.baseLba + uint32(r.count)
	return lba >= r.baseLba && lba+sectorCount <= end
}

func (r *readAhead) overlaps(lba uint32, sectorCount uint32) bool {
	if !r.valid {
		return false
	}
	end := r.baseLba + uint32(r.count)
	return lba < end && lba+sectorCount > r.baseLba
}

// SectorCache is private to one UsbBlockAdapter and must always be accessed
// under the caller's BlockDeviceLock (spec §5).
type SectorCache struct {
	dev        interfaces.BlockDevice
	sectorSize uint16
	readAheadN uint16

	dirty dirtySector
	ra    readAhead

	observer interfaces.Observer
}

// New creates a SectorCache over dev with a read-ahead window of
// readAheadSectors sectors (spec glossary: "typical 8").
func New(dev interfaces.BlockDevice, readAheadSectors uint16, observer interfaces.Observer) *SectorCache {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	ss := dev.SectorSize()
	return &SectorCache{
		dev:        dev,
		sectorSize: ss,
		readAheadN: readAheadSectors,
		dirty:      dirtySector{data: make([]byte, ss)},
		ra:         readAhead{data: make([]byte, int(ss)*int(readAheadSectors))},
		observer:   observer,
	}
}

// Read satisfies a SCSI transfer of len bytes starting offset bytes into
// sector lba (spec §4.2 read).
func (c *SectorCache) Read(lba uint32, offset uint32, out []byte) error {
	length := uint32(len(out))
	if offset == 0 && length%uint32(c.sectorSize) == 0 {
		return c.readAligned(lba, length/uint32(c.sectorSize), out)
	}
	return c.readPartial(lba, offset, out)
}

func (c *SectorCache) readAligned(lba uint32, sectorCount uint32, out []byte) error {
	if c.dirty.valid && c.dirty.dirty {
		if err := c.flushDirty(); err != nil {
			return err
		}
	}

	if c.ra.covers(lba, sectorCount) {
		c.observer.ObserveCache(true)
		off := (lba - c.ra.baseLba) * uint32(c.sectorSize)
		copy(out, c.ra.data[off:off+sectorCount*uint32(c.sectorSize)])
		return nil
	}
	c.observer.ObserveCache(false)

	if sectorCount <= uint32(c.readAheadN) {
		remaining := c.dev.SectorCount() - lba
		fetch := uint32(c.readAheadN)
		if remaining < fetch {
			fetch = remaining
		}
		if fetch < sectorCount {
			fetch = sectorCount
		}
		buf := c.ra.data[:fetch*uint32(c.sectorSize)]
		if err := c.dev.ReadSectors(lba, fetch, buf); err != nil {
			c.ra.valid = false
			return fmt.Errorf("cache: read-ahead at lba %d: %w", lba, err)
		}
		c.ra.valid = true
		c.ra.baseLba = lba
		c.ra.count = uint16(fetch)
		copy(out, buf[:sectorCount*uint32(c.sectorSize)])
		return nil
	}

	if err := c.dev.ReadSectors(lba, sectorCount, out); err != nil {
		return fmt.Errorf("cache: direct read at lba %d: %w", lba, err)
	}
	return nil
}

func (c *SectorCache) readPartial(lba uint32, offset uint32, out []byte) error {
	if err := c.loadDirty(lba); err != nil {
		return err
	}
	length := uint32(len(out))
	copy(out, c.dirty.data[offset:offset+length])
	return nil
}

// Write satisfies a SCSI write of len bytes starting offset bytes into
// sector lba (spec §4.2 write).
func (c *SectorCache) Write(lba uint32, offset uint32, src []byte) error {
	length := uint32(len(src))
	if offset == 0 && length%uint32(c.sectorSize) == 0 {
		return c.writeAligned(lba, length/uint32(c.sectorSize), src)
	}
	return c.writePartial(lba, offset, src)
}

func (c *SectorCache) writeAligned(lba uint32, sectorCount uint32, src []byte) error {
	// An aligned write supersedes any overlapping cached content; the
	// dirty cache and read-ahead window are invalidated rather than
	// merged (spec §9 Open Question). A dirty sector about to be
	// superseded is dropped directly instead of flushed first, since the
	// incoming write immediately overwrites it on the device anyway.
	superseded := c.dirty.valid && c.dirty.lba >= lba && c.dirty.lba < lba+sectorCount
	if c.dirty.valid && c.dirty.dirty && !superseded {
		if err := c.flushDirty(); err != nil {
			return err
		}
	}
	if superseded {
		c.dirty.valid = false
	}
	if c.ra.overlaps(lba, sectorCount) {
		c.ra.valid = false
	}

	if err := c.dev.WriteSectors(lba, sectorCount, src); err != nil {
		return fmt.Errorf("cache: aligned write at lba %d: %w", lba, err)
	}
	return nil
}

func (c *SectorCache) writePartial(lba uint32, offset uint32, src []byte) error {
	if c.dirty.valid && c.dirty.lba != lba {
		if err := c.flushDirty(); err != nil {
			return err
		}
	}
	if err := c.loadDirty(lba); err != nil {
		return err
	}
	length := uint32(len(src))
	copy(c.dirty.data[offset:offset+length], src)
	c.dirty.dirty = true

	if c.ra.overlaps(lba, 1) {
		c.ra.valid = false
	}
	return nil
}

// loadDirty ensures c.dirty holds sector lba, reading it from the device if
// not already resident.
func (c *SectorCache) loadDirty(lba uint32) error {
	if c.dirty.valid && c.dirty.lba == lba {
		return nil
	}
	if c.dirty.valid && c.dirty.dirty {
		if err := c.flushDirty(); err != nil {
			return err
		}
	}
	if err := c.dev.ReadSectors(lba, 1, c.dirty.data); err != nil {
		return fmt.Errorf("cache: load sector %d: %w", lba, err)
	}
	c.dirty.valid = true
	c.dirty.lba = lba
	c.dirty.dirty = false
	return nil
}

func (c *SectorCache) flushDirty() error {
	if !c.dirty.valid || !c.dirty.dirty {
		return nil
	}
	if err := c.dev.WriteSectors(c.dirty.lba, 1, c.dirty.data); err != nil {
		return fmt.Errorf("cache: flush sector %d: %w", c.dirty.lba, err)
	}
	c.dirty.dirty = false
	return nil
}

// Flush writes back the dirty sector if any (spec §4.2 flush; used by
// SynchronizeCache and PreventAllowRemoval).
func (c *SectorCache) Flush() error {
	return c.flushDirty()
}

// Invalidate drops both caches after flushing any dirty sector (spec §4.2
// invalidate; used on USB detach).
func (c *SectorCache) Invalidate() error {
	if err := c.flushDirty(); err != nil {
		return err
	}
	c.dirty.valid = false
	c.ra.valid = false
	return nil
}
