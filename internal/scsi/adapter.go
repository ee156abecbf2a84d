// Package scsi implements the UsbBlockAdapter: the subset of SCSI/MSC
// command callbacks a USB Mass Storage host driver issues, on top of a
// BlockDevice and SectorCache (spec §4.3).
package scsi

import (
	"time"

	"github.com/yarrco/sdbridge/internal/cache"
	"github.com/yarrco/sdbridge/internal/interfaces"
)

// SenseKey/ASC pairs the adapter can report. Named after the SCSI sense
// key and additional-sense-code pair rather than a project-local enum, so
// they read the same as the wire values a host driver expects.
type Sense struct {
	Key byte
	Asc byte
	Asq byte
}

var (
	SenseNone            = Sense{0x00, 0x00, 0x00}
	SenseUnitAttention    = Sense{0x06, 0x28, 0x00} // "not ready to ready transition"
	SenseNotReady         = Sense{0x02, 0x3A, 0x00} // "medium not present"
	SenseMediumErrorRead  = Sense{0x03, 0x11, 0x00} // "unrecovered read error"
	SenseMediumErrorWrite = Sense{0x03, 0x03, 0x00} // "peripheral device write fault"
	SenseIllegalRequest   = Sense{0x05, 0x20, 0x00} // "invalid command operation code"
)

// InquiryData is the fixed vendor/product/revision response.
type InquiryData struct {
	Vendor   string
	Product  string
	Revision string
}

var DefaultInquiry = InquiryData{
	Vendor:   "SDBRIDGE",
	Product:  "SD Card Bridge",
	Revision: "1.0",
}

// Adapter implements the SCSI/MSC command set the USB host driver issues
// against a single SD card. Never panics a callback: every error path
// leaves the cache consistent and sets Sense (spec §4.3 failure policy).
type Adapter struct {
	dev   interfaces.BlockDevice
	cache *cache.SectorCache

	mediaPresent  bool
	unitAttention bool

	sense Sense

	observer interfaces.Observer
}

// New creates an Adapter over dev, with a SectorCache of readAheadSectors.
// Media starts absent; Attach marks it present and arms unit-attention,
// which is raised once per call to Attach.
func New(dev interfaces.BlockDevice, readAheadSectors uint16, observer interfaces.Observer) *Adapter {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Adapter{
		dev:      dev,
		cache:    cache.New(dev, readAheadSectors, observer),
		observer: observer,
	}
}

// Attach marks media present and arms a one-shot unit-attention condition,
// raised by the next TestUnitReady (spec §4.3, §8 "unit-attention raised
// exactly once per attach").
func (a *Adapter) Attach() {
	a.mediaPresent = true
	a.unitAttention = true
	a.sense = SenseNone
}

// Detach flushes the cache and marks media absent.
func (a *Adapter) Detach() error {
	a.mediaPresent = false
	return a.cache.Invalidate()
}

// Inquiry returns the fixed vendor/product/revision identification.
func (a *Adapter) Inquiry() InquiryData {
	return DefaultInquiry
}

// TestUnitReady reports success iff media is present and no unit-attention
// is pending; the first call after Attach clears the pending condition and
// fails with SenseUnitAttention instead.
func (a *Adapter) TestUnitReady() (ok bool, sense Sense) {
	if !a.mediaPresent {
		a.sense = SenseNotReady
		return false, a.sense
	}
	if a.unitAttention {
		a.unitAttention = false
		a.sense = SenseUnitAttention
		return false, a.sense
	}
	a.sense = SenseNone
	return true, SenseNone
}

// ReadCapacity returns (block_count, block_size) from the BlockDevice.
func (a *Adapter) ReadCapacity() (blockCount uint32, blockSize uint16, sense Sense, ok bool) {
	if !a.mediaPresent {
		a.sense = SenseNotReady
		return 0, 0, a.sense, false
	}
	a.sense = SenseNone
	return a.dev.SectorCount(), a.dev.SectorSize(), SenseNone, true
}

// ReadFormatCapacities mirrors ReadCapacity for the MSC variant command
// that reports formattable capacity lists; this adapter only ever reports
// the card's current formatted capacity.
func (a *Adapter) ReadFormatCapacities() (blockCount uint32, blockSize uint16, sense Sense, ok bool) {
	return a.ReadCapacity()
}

// Read10 delegates to the SectorCache, returning SenseMediumErrorRead on
// any underlying failure.
func (a *Adapter) Read10(lba uint32, offset uint32, buf []byte) (sense Sense, ok bool) {
	if !a.mediaPresent {
		a.sense = SenseNotReady
		return a.sense, false
	}
	start := time.Now()
	err := a.cache.Read(lba, offset, buf)
	a.observer.ObserveScsiRead(uint64(len(buf)), uint64(time.Since(start)), err == nil)
	if err != nil {
		a.sense = SenseMediumErrorRead
		return a.sense, false
	}
	a.sense = SenseNone
	return SenseNone, true
}

// Write10 delegates to the SectorCache, returning SenseMediumErrorWrite on
// any underlying failure.
func (a *Adapter) Write10(lba uint32, offset uint32, buf []byte) (sense Sense, ok bool) {
	if !a.mediaPresent {
		a.sense = SenseNotReady
		return a.sense, false
	}
	start := time.Now()
	err := a.cache.Write(lba, offset, buf)
	a.observer.ObserveScsiWrite(uint64(len(buf)), uint64(time.Since(start)), err == nil)
	if err != nil {
		a.sense = SenseMediumErrorWrite
		return a.sense, false
	}
	a.sense = SenseNone
	return SenseNone, true
}

// SynchronizeCache flushes the SectorCache's dirty sector.
func (a *Adapter) SynchronizeCache() (sense Sense, ok bool) {
	start := time.Now()
	err := a.cache.Flush()
	a.observer.ObserveScsiFlush(uint64(time.Since(start)))
	if err != nil {
		a.sense = SenseMediumErrorWrite
		return a.sense, false
	}
	a.sense = SenseNone
	return SenseNone, true
}

// PreventAllowRemoval flushes the cache the same way SynchronizeCache does;
// the spec treats both as cache-flush-then-succeed (spec §4.3).
func (a *Adapter) PreventAllowRemoval(prevent bool) (sense Sense, ok bool) {
	return a.SynchronizeCache()
}

// StartStopUnit is a no-op; it returns the requested start state verbatim.
func (a *Adapter) StartStopUnit(start bool) (started bool, sense Sense, ok bool) {
	a.sense = SenseNone
	return start, SenseNone, true
}

// ModeSense is a minimal stub reporting only the mode data length, as the
// spec requires no mode pages beyond that.
func (a *Adapter) ModeSense(sixByte bool) (modeDataLength uint16, sense Sense, ok bool) {
	if sixByte {
		return 3, SenseNone, true
	}
	return 8, SenseNone, true
}

// UnknownCommand is invoked for any opcode the adapter does not implement.
func (a *Adapter) UnknownCommand() (sense Sense, ok bool) {
	a.sense = SenseIllegalRequest
	return a.sense, false
}

// LastSense returns the sense set by the most recent command.
func (a *Adapter) LastSense() Sense { return a.sense }

// MediaPresent reports whether media is currently attached.
func (a *Adapter) MediaPresent() bool { return a.mediaPresent }
