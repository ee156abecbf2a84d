// Package selftest implements a background benchmark/corruption-check pass
// over the mounted filesystem overlay: it writes a pattern file, reads it
// back, and reports throughput alongside any mismatch it finds. It shares
// the arbiter's FsOpLock discipline so it never overlaps a USB attach.
package selftest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// Report is the outcome of one self-test run.
type Report struct {
	BytesWritten   int64
	BytesRead      int64
	WriteDuration  time.Duration
	ReadDuration   time.Duration
	WriteBytesPerSec float64
	ReadBytesPerSec  float64
	Corrupted      bool
}

const selfTestPath = "/.sdbridge-selftest.bin"

// Runner drives one self-test pass against a FilesystemOverlay.
type Runner struct {
	fs interfaces.FilesystemOverlay
}

// New creates a Runner over fs.
func New(fs interfaces.FilesystemOverlay) *Runner {
	return &Runner{fs: fs}
}

// Run writes sizeBytes of a deterministic pattern to a scratch file, reads
// it back, and verifies the content hash. The scratch file is removed
// before returning regardless of outcome.
func (r *Runner) Run(ctx context.Context, sizeBytes int64) (Report, error) {
	var rep Report

	w, err := r.fs.OpenWrite(selfTestPath)
	if err != nil {
		return rep, fmt.Errorf("selftest: open for write: %w", err)
	}

	writeHash := sha256.New()
	chunk := make([]byte, 64*1024)
	start := time.Now()
	var written int64
	for written < sizeBytes {
		if err := ctx.Err(); err != nil {
			w.Close()
			r.fs.Unlink(selfTestPath)
			return rep, err
		}
		n := int64(len(chunk))
		if sizeBytes-written < n {
			n = sizeBytes - written
		}
		fillPattern(chunk[:n], written)
		if _, err := w.Write(chunk[:n]); err != nil {
			w.Close()
			r.fs.Unlink(selfTestPath)
			return rep, fmt.Errorf("selftest: write: %w", err)
		}
		writeHash.Write(chunk[:n])
		written += n
	}
	rep.WriteDuration = time.Since(start)
	rep.BytesWritten = written
	if err := w.Close(); err != nil {
		r.fs.Unlink(selfTestPath)
		return rep, fmt.Errorf("selftest: close write: %w", err)
	}
	if rep.WriteDuration > 0 {
		rep.WriteBytesPerSec = float64(written) / rep.WriteDuration.Seconds()
	}

	rr, err := r.fs.OpenRead(selfTestPath)
	if err != nil {
		r.fs.Unlink(selfTestPath)
		return rep, fmt.Errorf("selftest: open for read: %w", err)
	}
	defer rr.Close()

	readHash := sha256.New()
	start = time.Now()
	var read int64
	buf := make([]byte, 64*1024)
	for {
		n, rerr := rr.Read(buf)
		if n > 0 {
			readHash.Write(buf[:n])
			read += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			r.fs.Unlink(selfTestPath)
			return rep, fmt.Errorf("selftest: read: %w", rerr)
		}
	}
	rep.ReadDuration = time.Since(start)
	rep.BytesRead = read
	if rep.ReadDuration > 0 {
		rep.ReadBytesPerSec = float64(read) / rep.ReadDuration.Seconds()
	}

	rep.Corrupted = read != written || string(readHash.Sum(nil)) != string(writeHash.Sum(nil))

	if err := r.fs.Unlink(selfTestPath); err != nil {
		return rep, fmt.Errorf("selftest: cleanup: %w", err)
	}
	return rep, nil
}

// fillPattern writes a position-dependent byte pattern so corruption at
// any offset is detectable without keeping the whole buffer in memory.
func fillPattern(buf []byte, baseOffset int64) {
	for i := range buf {
		buf[i] = byte((baseOffset + int64(i)) & 0xFF)
	}
}
