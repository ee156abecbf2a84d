package upload

import (
	"errors"
	"sync"
	"time"
)

// ErrNoMem is returned when neither the preferred nor fallback ring size
// could be allocated (spec §4.4 "Ring sizing").
var ErrNoMem = errors.New("upload: failed to allocate ring buffer")

// Ring is the bounded byte queue connecting the upload producer and
// consumer (spec §3 UploadContext.ring). It is a true circular byte
// buffer with copy-in/copy-out semantics, not a channel of chunk objects,
// so handoff cost is independent of how the producer happens to slice its
// reads.
type Ring struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf        []byte
	readIdx    int
	writeIdx   int
	used       int
	closed     bool
	firstErr   error
}

// NewRing allocates a ring of capacity bytes.
func NewRing(capacity int) *Ring {
	r := &Ring{buf: make([]byte, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// NewRingWithFallback tries preferred first, then fallback, matching the
// spec's ring-sizing policy. A make() panic (out-of-range length) is
// recovered and treated as an allocation failure.
func NewRingWithFallback(preferred, fallback int) (r *Ring, err error) {
	if r = tryNewRing(preferred); r != nil {
		return r, nil
	}
	if r = tryNewRing(fallback); r != nil {
		return r, nil
	}
	return nil, ErrNoMem
}

func tryNewRing(size int) (r *Ring) {
	defer func() {
		if recover() != nil {
			r = nil
		}
	}()
	return NewRing(size)
}

// Push copies p into the ring, blocking until there is room for all of it
// or the ring has been closed with an error. Push never partially writes:
// either all of p lands in the ring, or an error is returned.
func (r *Ring) Push(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.buf)-r.used < len(p) {
		if r.firstErr != nil {
			return r.firstErr
		}
		if r.closed {
			return errors.New("upload: push after producer closed the ring")
		}
		r.cond.Wait()
	}
	if r.firstErr != nil {
		return r.firstErr
	}

	first := copy(r.buf[r.writeIdx:], p)
	if first < len(p) {
		copy(r.buf, p[first:])
	}
	r.writeIdx = (r.writeIdx + len(p)) % len(r.buf)
	r.used += len(p)
	r.cond.Broadcast()
	return nil
}

// Pop copies up to len(out) buffered bytes into out, blocking up to
// timeout for at least one byte to become available. It returns n == 0,
// done == true only once the ring is both closed and drained.
func (r *Ring) Pop(out []byte, timeout time.Duration) (n int, done bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.used == 0 {
		if r.firstErr != nil {
			return 0, false, r.firstErr
		}
		if r.closed {
			return 0, true, nil
		}
		condWaitTimeout(r.cond, timeout)
		if r.used == 0 {
			if r.firstErr != nil {
				return 0, false, r.firstErr
			}
			if r.closed {
				return 0, true, nil
			}
			// Timed out with nothing available and producer still open:
			// return to caller so it can re-check input_done/context.
			return 0, false, nil
		}
	}

	n = len(out)
	if n > r.used {
		n = r.used
	}
	first := copy(out[:n], r.buf[r.readIdx:])
	if first < n {
		copy(out[first:n], r.buf)
	}
	r.readIdx = (r.readIdx + n) % len(r.buf)
	r.used -= n
	r.cond.Broadcast()
	return n, false, nil
}

// CloseInput marks producer input as finished: no more Push calls will
// occur. The consumer drains whatever remains, then Pop reports done.
func (r *Ring) CloseInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}

// Fail records the first error and wakes any blocked Push/Pop. Subsequent
// calls are no-ops: the first error wins (spec §4.4 cancellation).
func (r *Ring) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstErr == nil {
		r.firstErr = err
	}
	r.cond.Broadcast()
}

// condWaitTimeout waits on c for at most d, using a timer to force a
// spurious wake if nothing signals it first.
func condWaitTimeout(c *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
	})
	defer timer.Stop()
	c.Wait()
}
