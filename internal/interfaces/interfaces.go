// Package interfaces provides the external-collaborator interfaces the
// sdbridge core consumes (spec §6), kept separate from the public root
// package to avoid import cycles between it and the internal packages that
// implement or exercise these contracts.
package interfaces

import (
	"io"
	"io/fs"
)

// BlockDevice is the abstract sector-addressed storage the core arbitrates
// access to. Assumed synchronous and serialized internally by the caller
// (spec §2): implementations do not need their own locking against
// concurrent callers, because the arbiter/BlockDeviceLock discipline
// guarantees single-threaded access.
type BlockDevice interface {
	ReadSectors(lba uint32, count uint32, buf []byte) error
	WriteSectors(lba uint32, count uint32, buf []byte) error
	SectorSize() uint16
	SectorCount() uint32
}

// DirEntry is one entry returned by FilesystemOverlay.ListDir.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// FilesystemOverlay is the mounted-filesystem collaborator FsHandlers and
// the self-test runner operate through while Mode is AppMounted.
type FilesystemOverlay interface {
	Mount(mountPoint string) error
	Unmount() error
	ListDir(path string) ([]DirEntry, error)
	Stat(path string) (fs.FileInfo, error)
	OpenRead(path string) (io.ReadCloser, error)
	OpenWrite(path string) (io.WriteCloser, error)
	Unlink(path string) error
	Mkdir(path string) error
	Rename(oldPath, newPath string) error
}

// UsbStack is the external USB controller driver. Start registers the
// SCSI/MSC callback set and brings the USB device up; Stop tears it down.
type UsbStack interface {
	Start(callbacks any) error
	Stop() error
	Connected() bool
}

// Config is the persisted configuration the ConfigStore loads/saves
// (spec §6); only WebPort is consumed by the core itself.
type Config struct {
	DevName      string
	StaSSID      string
	StaPSK       string
	WebPort      int
	WifiBootMode string
}

// ConfigStore persists Config across reboots.
type ConfigStore interface {
	Load() (Config, error)
	Save(Config) error
}

// Logger is the minimal structured-logging surface used by every
// subsystem. Mirrors the teacher's Logger interface shape.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer is a pluggable sink for metrics events raised by the SCSI
// adapter, the arbiter, and the upload pipeline. Declared here (rather
// than in the root package, which implements it via Metrics) so internal
// packages can depend on it without an import cycle.
type Observer interface {
	ObserveScsiRead(bytes uint64, latencyNs uint64, success bool)
	ObserveScsiWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveScsiFlush(latencyNs uint64)
	ObserveCache(hit bool)
	ObserveArbiterTransition()
	ObserveArbiterBusy()
	ObserveArbiterFatal()
	ObserveUploadChunk(bytesIn, bytesOut uint64)
	ObserveUploadResult(ok bool)
}

// NoOpObserver discards every event. Packages that accept an
// interfaces.Observer can default to this when none is supplied.
type NoOpObserver struct{}

func (NoOpObserver) ObserveScsiRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveScsiWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveScsiFlush(uint64)               {}
func (NoOpObserver) ObserveCache(bool)                     {}
func (NoOpObserver) ObserveArbiterTransition()             {}
func (NoOpObserver) ObserveArbiterBusy()                   {}
func (NoOpObserver) ObserveArbiterFatal()                  {}
func (NoOpObserver) ObserveUploadChunk(uint64, uint64)     {}
func (NoOpObserver) ObserveUploadResult(bool)              {}
