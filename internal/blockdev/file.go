package blockdev

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// File is a BlockDevice backed by a regular file or loop device, using
// pread/pwrite so concurrent callers don't need to share a file offset.
// A single mutex serializes access: the arbiter already guarantees
// single-threaded BlockDevice access (spec §2), this is defense against a
// caller that forgets.
type File struct {
	f          *os.File
	sectorSize uint16
	numSectors uint32
	mu         sync.Mutex
}

// OpenFile opens path (a raw image file or block device node) as a
// BlockDevice of the given sector geometry. The file is opened O_RDWR
// without O_DIRECT by default: O_DIRECT requires sector-aligned buffers
// everywhere including the upload pipeline's file-backed overlay, which the
// spec does not require to be aligned, so it is opt-in via OpenFileDirect.
func OpenFile(path string, sectorSize uint16, numSectors uint32) (*File, error) {
	return openFile(path, sectorSize, numSectors, 0)
}

// OpenFileDirect opens path with O_DIRECT, for callers that guarantee
// sector-aligned buffers (e.g. a dedicated loop device backing the card).
func OpenFileDirect(path string, sectorSize uint16, numSectors uint32) (*File, error) {
	return openFile(path, sectorSize, numSectors, unix.O_DIRECT)
}

func openFile(path string, sectorSize uint16, numSectors uint32, extraFlags int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|extraFlags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	wantSize := int64(sectorSize) * int64(numSectors)
	if err := f.Truncate(wantSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: truncate %s to %d: %w", path, wantSize, err)
	}
	return &File{f: f, sectorSize: sectorSize, numSectors: numSectors}, nil
}

func (d *File) checkRange(lba, count uint32, buf []byte) error {
	if count == 0 {
		return fmt.Errorf("blockdev: zero sector count")
	}
	if uint64(lba)+uint64(count) > uint64(d.numSectors) {
		return fmt.Errorf("blockdev: lba range [%d,%d) exceeds device of %d sectors", lba, lba+count, d.numSectors)
	}
	want := int(count) * int(d.sectorSize)
	if len(buf) < want {
		return fmt.Errorf("blockdev: buffer too small: have %d, need %d", len(buf), want)
	}
	return nil
}

// ReadSectors implements interfaces.BlockDevice via pread(2).
func (d *File) ReadSectors(lba uint32, count uint32, buf []byte) error {
	if err := d.checkRange(lba, count, buf); err != nil {
		return err
	}
	off := int64(lba) * int64(d.sectorSize)
	n := int(count) * int(d.sectorSize)

	d.mu.Lock()
	defer d.mu.Unlock()

	read := 0
	for read < n {
		m, err := unix.Pread(int(d.f.Fd()), buf[read:n], off+int64(read))
		if err != nil {
			return fmt.Errorf("blockdev: pread at lba %d: %w", lba, err)
		}
		if m == 0 {
			return fmt.Errorf("blockdev: short read at lba %d: got %d of %d bytes", lba, read, n)
		}
		read += m
	}
	return nil
}

// WriteSectors implements interfaces.BlockDevice via pwrite(2).
func (d *File) WriteSectors(lba uint32, count uint32, buf []byte) error {
	if err := d.checkRange(lba, count, buf); err != nil {
		return err
	}
	off := int64(lba) * int64(d.sectorSize)
	n := int(count) * int(d.sectorSize)

	d.mu.Lock()
	defer d.mu.Unlock()

	written := 0
	for written < n {
		m, err := unix.Pwrite(int(d.f.Fd()), buf[written:n], off+int64(written))
		if err != nil {
			return fmt.Errorf("blockdev: pwrite at lba %d: %w", lba, err)
		}
		written += m
	}
	return nil
}

// Flush fsyncs the backing file. It is not part of interfaces.BlockDevice,
// so the SCSI SynchronizeCache path (which flushes only the sector cache)
// does not call it.
func (d *File) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := unix.Fsync(int(d.f.Fd())); err != nil {
		return fmt.Errorf("blockdev: fsync: %w", err)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

// SectorSize implements interfaces.BlockDevice.
func (d *File) SectorSize() uint16 { return d.sectorSize }

// SectorCount implements interfaces.BlockDevice.
func (d *File) SectorCount() uint32 { return d.numSectors }

var _ interfaces.BlockDevice = (*File)(nil)
