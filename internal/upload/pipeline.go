// Package upload implements the streaming HTTP upload pipeline: a producer
// that scans multipart boundaries (or streams a raw body) into a bounded
// byte ring, and a dedicated consumer that writes large buffered chunks to
// a staging file (spec §4.4).
package upload

import (
	"errors"
	"io"

	"github.com/yarrco/sdbridge/internal/bufpool"
	"github.com/yarrco/sdbridge/internal/constants"
	"github.com/yarrco/sdbridge/internal/interfaces"
)

// Tunables (spec §4.4), sourced from internal/constants so they stay in
// sync with the rest of the system instead of drifting as a second copy.
const (
	ScratchReadSize   = constants.UploadScratchReadSize
	RingSizePreferred = constants.UploadRingSizePreferred
	RingSizeFallback  = constants.UploadRingSizeFallback
	HeaderBufferMax   = constants.MultipartHeaderBufferSize
	TailBufferMax     = constants.MultipartTailBufferSize
	ConsumerMinWrite  = constants.ConsumerMinWriteSize
	ConsumerPollWait  = constants.ConsumerPollTimeout
)

var (
	ErrNoBody           = errors.New("upload: empty body")
	ErrNoName           = errors.New("upload: missing name")
	ErrNoFilename       = errors.New("upload: missing filename")
	ErrNoContentType    = errors.New("upload: missing content-type")
	ErrNoBoundary       = errors.New("upload: missing multipart boundary")
	ErrBoundaryTooLong  = errors.New("upload: boundary exceeds tail buffer")
	ErrHeaderTooLarge   = errors.New("upload: multipart header too large")
	ErrBadMultipart     = errors.New("upload: malformed multipart body")
	ErrBadBody          = errors.New("upload: malformed body")
)

// Result is the terminal outcome of one upload.
type Result struct {
	BytesIn  uint64
	BytesOut uint64
	Chunks   uint64
	Err      error
}

// Pipeline moves HTTP request bytes onto the filesystem overlay through a
// bounded ring buffer so a stalled Wi-Fi receive never blocks the SD write
// path, and vice versa (spec §4.4).
type Pipeline struct {
	observer interfaces.Observer
}

// New creates a Pipeline reporting through observer (nil uses a no-op).
func New(observer interfaces.Observer) *Pipeline {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Pipeline{observer: observer}
}

// RunRaw streams body into w until EOF or the first read or write error.
// It is the §4.4 "Raw" mode: the caller has already resolved name and
// opened the staging file.
func (p *Pipeline) RunRaw(body io.Reader, w io.Writer) Result {
	ring, err := NewRingWithFallback(RingSizePreferred, RingSizeFallback)
	if err != nil {
		return Result{Err: err}
	}

	var res Result
	var consumerErr error
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		bytesOut, chunks, cerr := consume(ring, w, p.observer)
		res.BytesOut = bytesOut
		res.Chunks = chunks
		consumerErr = cerr
		if cerr != nil {
			ring.Fail(cerr)
		}
	}()

	bytesIn, perr := feedRaw(ring, body)
	res.BytesIn = bytesIn
	if perr != nil {
		ring.Fail(perr)
	}
	ring.CloseInput()
	<-consumerDone

	// A producer (body-read) error takes priority, but a clean producer
	// finish doesn't mean the bytes reached the staging file: the
	// consumer's write can still fail (disk full, short write) after the
	// body was fully read.
	if perr != nil {
		res.Err = perr
	} else {
		res.Err = consumerErr
	}
	return res
}

// RunMultipart streams the body of the first part of a multipart body into
// w, returning the extracted filename alongside the usual Result. Only the
// first part is examined: if it has no filename= parameter the upload fails
// with ErrNoFilename, and later parts are not searched.
func (p *Pipeline) RunMultipart(body io.Reader, boundary string, w io.Writer) (filename string, res Result) {
	if len(boundary) > TailBufferMax-1 {
		return "", Result{Err: ErrBoundaryTooLong}
	}

	ring, err := NewRingWithFallback(RingSizePreferred, RingSizeFallback)
	if err != nil {
		return "", Result{Err: err}
	}

	var consumeRes Result
	var consumerErr error
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		bytesOut, chunks, cerr := consume(ring, w, p.observer)
		consumeRes.BytesOut = bytesOut
		consumeRes.Chunks = chunks
		consumerErr = cerr
		if cerr != nil {
			ring.Fail(cerr)
		}
	}()

	name, bytesIn, perr := feedMultipart(ring, body, boundary)
	consumeRes.BytesIn = bytesIn
	if perr != nil {
		ring.Fail(perr)
	}
	ring.CloseInput()
	<-consumerDone

	if perr != nil {
		consumeRes.Err = perr
	} else {
		consumeRes.Err = consumerErr
	}
	return name, consumeRes
}

// consume drains ring into w in >=ConsumerMinWrite buffered chunks, using a
// pooled scratch buffer, until the ring reports done or a push/pop error
// occurs.
func consume(ring *Ring, w io.Writer, observer interfaces.Observer) (bytesOut uint64, chunks uint64, err error) {
	scratch := bufpool.GetBuffer(ConsumerMinWrite)
	defer bufpool.PutBuffer(scratch)

	pending := 0
	flush := func() error {
		if pending == 0 {
			return nil
		}
		n, werr := w.Write(scratch[:pending])
		bytesOut += uint64(n)
		chunks++
		observer.ObserveUploadChunk(uint64(pending), uint64(n))
		pending = 0
		if werr != nil {
			return werr
		}
		return nil
	}

	for {
		n, done, perr := ring.Pop(scratch[pending:], ConsumerPollWait)
		if perr != nil {
			_ = flush()
			return bytesOut, chunks, perr
		}
		pending += n
		if pending == len(scratch) {
			if err := flush(); err != nil {
				return bytesOut, chunks, err
			}
		}
		if done {
			if err := flush(); err != nil {
				return bytesOut, chunks, err
			}
			return bytesOut, chunks, nil
		}
	}
}

// feedRaw pushes body bytes into ring until EOF or a read error.
func feedRaw(ring *Ring, body io.Reader) (bytesIn uint64, err error) {
	scratch := bufpool.GetBuffer(ScratchReadSize)
	defer bufpool.PutBuffer(scratch)

	for {
		n, rerr := body.Read(scratch)
		if n > 0 {
			bytesIn += uint64(n)
			if perr := ring.Push(scratch[:n]); perr != nil {
				return bytesIn, perr
			}
		}
		if rerr == io.EOF {
			return bytesIn, nil
		}
		if rerr != nil {
			return bytesIn, rerr
		}
	}
}

// feedMultipart scans the first part's header (which must carry a
// filename), then streams its body into ring, holding back the last len(marker)-1 bytes as
// a tail between iterations so the boundary marker is never split across a
// Push (spec §4.4 step 1).
func feedMultipart(ring *Ring, body io.Reader, boundary string) (filename string, bytesIn uint64, err error) {
	marker := []byte("\r\n--" + boundary)

	header, rest, herr := readPartHeader(body)
	if herr != nil {
		return "", 0, herr
	}
	filename, herr = extractFilename(header)
	if herr != nil {
		return "", 0, herr
	}

	scratch := bufpool.GetBuffer(ScratchReadSize)
	defer bufpool.PutBuffer(scratch)

	tail := append([]byte(nil), rest...)

	for {
		if idx := indexMarker(tail, marker); idx >= 0 {
			if idx > 0 {
				bytesIn += uint64(idx)
				if perr := ring.Push(tail[:idx]); perr != nil {
					return filename, bytesIn, perr
				}
			}
			return filename, bytesIn, nil
		}

		if len(tail) > TailBufferMax+len(marker) {
			// Nothing resembling the marker is going to appear in the
			// carried tail; flush all but the last len(marker)-1 bytes.
			flushLen := len(tail) - (len(marker) - 1)
			bytesIn += uint64(flushLen)
			if perr := ring.Push(tail[:flushLen]); perr != nil {
				return filename, bytesIn, perr
			}
			tail = append([]byte(nil), tail[flushLen:]...)
		}

		n, rerr := body.Read(scratch)
		if n > 0 {
			tail = append(tail, scratch[:n]...)
		}
		if rerr == io.EOF {
			if idx := indexMarker(tail, marker); idx >= 0 {
				if idx > 0 {
					bytesIn += uint64(idx)
					if perr := ring.Push(tail[:idx]); perr != nil {
						return filename, bytesIn, perr
					}
				}
				return filename, bytesIn, nil
			}
			return filename, bytesIn, ErrBadMultipart
		}
		if rerr != nil {
			return filename, bytesIn, rerr
		}
	}
}

func indexMarker(buf, marker []byte) int {
	if len(buf) < len(marker) {
		return -1
	}
outer:
	for i := 0; i+len(marker) <= len(buf); i++ {
		for j := range marker {
			if buf[i+j] != marker[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// readPartHeader accumulates bytes from body until "\r\n\r\n" (or "\n\n")
// is found, bounded by HeaderBufferMax (spec §4.4 edge cases).
func readPartHeader(body io.Reader) (header string, rest []byte, err error) {
	buf := make([]byte, 0, 4096)
	scratch := make([]byte, 4096)

	for {
		if idx := headerEnd(buf); idx >= 0 {
			return string(buf[:idx]), buf[idx:], nil
		}
		if len(buf) > HeaderBufferMax {
			return "", nil, ErrHeaderTooLarge
		}
		n, rerr := body.Read(scratch)
		if n > 0 {
			buf = append(buf, scratch[:n]...)
		}
		if rerr == io.EOF {
			return "", nil, ErrBadMultipart
		}
		if rerr != nil {
			return "", nil, rerr
		}
	}
}

func headerEnd(buf []byte) int {
	if i := indexOf(buf, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	if i := indexOf(buf, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return -1
}

func indexOf(buf, sub []byte) int {
	if len(buf) < len(sub) {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(buf); i++ {
		for j := range sub {
			if buf[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// extractFilename parses the Content-Disposition filename= parameter out
// of one part's header text.
func extractFilename(header string) (string, error) {
	const key = `filename="`
	idx := indexOfString(header, key)
	if idx < 0 {
		return "", ErrNoFilename
	}
	start := idx + len(key)
	end := indexOfString(header[start:], `"`)
	if end < 0 {
		return "", ErrBadMultipart
	}
	name := header[start : start+end]
	if name == "" {
		return "", ErrNoFilename
	}
	return name, nil
}

func indexOfString(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
