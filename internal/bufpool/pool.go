// Package bufpool provides pooled byte slices for the upload pipeline's
// producer/consumer chunk buffers, avoiding a hot-path allocation on every
// multipart read or consumer write.
package bufpool

import "sync"

// Buffer size thresholds, sized around the upload pipeline's own constants:
// the 32KiB producer scratch read, the 32KiB consumer minimum write, and the
// 256KiB/512KiB ring buffer sizes (internal/constants).
const (
	size32k  = 32 * 1024
	size64k  = 64 * 1024
	size256k = 256 * 1024
	size512k = 512 * 1024
)

// globalPool is the shared buffer pool for all upload pipeline instances.
// Uses pointer-to-slice pattern for efficient sync.Pool usage.
var globalPool = struct {
	pool32k  sync.Pool
	pool64k  sync.Pool
	pool256k sync.Pool
	pool512k sync.Pool
}{
	pool32k:  sync.Pool{New: func() any { b := make([]byte, size32k); return &b }},
	pool64k:  sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
	pool256k: sync.Pool{New: func() any { b := make([]byte, size256k); return &b }},
	pool512k: sync.Pool{New: func() any { b := make([]byte, size512k); return &b }},
}

// GetBuffer returns a pooled buffer of at least the requested size.
// Caller must call PutBuffer when done.
func GetBuffer(size uint32) []byte {
	switch {
	case size <= size32k:
		return (*globalPool.pool32k.Get().(*[]byte))[:size]
	case size <= size64k:
		return (*globalPool.pool64k.Get().(*[]byte))[:size]
	case size <= size256k:
		return (*globalPool.pool256k.Get().(*[]byte))[:size]
	case size <= size512k:
		return (*globalPool.pool512k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer to the pool. The buffer's capacity determines
// which pool it goes to; buffers with non-standard capacity (e.g. a final
// short chunk that was reallocated) are dropped rather than pooled.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size32k:
		globalPool.pool32k.Put(&buf)
	case size64k:
		globalPool.pool64k.Put(&buf)
	case size256k:
		globalPool.pool256k.Put(&buf)
	case size512k:
		globalPool.pool512k.Put(&buf)
	}
}
