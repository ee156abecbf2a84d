package upload

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRawStreamsBody(t *testing.T) {
	p := New(nil)
	var out bytes.Buffer
	res := p.RunRaw(strings.NewReader("HELLO\n"), &out)
	require.NoError(t, res.Err)
	assert.Equal(t, "HELLO\n", out.String())
	assert.EqualValues(t, 6, res.BytesIn)
}

func TestRunRawPropagatesReadError(t *testing.T) {
	p := New(nil)
	var out bytes.Buffer
	res := p.RunRaw(&errorReader{err: io.ErrUnexpectedEOF}, &out)
	assert.Error(t, res.Err)
}

type errorReader struct{ err error }

func (e *errorReader) Read([]byte) (int, error) { return 0, e.err }

func TestRunMultipartSimple(t *testing.T) {
	body := "--BDY\r\n" +
		`Content-Disposition: form-data; name="file"; filename="a.bin"` + "\r\n\r\n" +
		"AB\r\n--BDY--\r\n"

	p := New(nil)
	var out bytes.Buffer
	name, res := p.RunMultipart(strings.NewReader(body), "BDY", &out)
	require.NoError(t, res.Err)
	assert.Equal(t, "a.bin", name)
	assert.Equal(t, "AB", out.String())
}

// splitReader returns its data across multiple Read calls at the given
// split points, exercising the boundary-straddling carry-over path.
type splitReader struct {
	chunks [][]byte
	idx    int
}

func (s *splitReader) Read(p []byte) (int, error) {
	if s.idx >= len(s.chunks) {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[s.idx])
	s.idx++
	return n, nil
}

func TestRunMultipartBoundaryStraddlesReads(t *testing.T) {
	header := "--BDY\r\n" +
		`Content-Disposition: form-data; name="file"; filename="a.bin"` + "\r\n\r\n"
	r := &splitReader{chunks: [][]byte{
		[]byte(header + "A"),
		[]byte("B\r\n--BDY--\r\n"),
	}}

	p := New(nil)
	var out bytes.Buffer
	name, res := p.RunMultipart(r, "BDY", &out)
	require.NoError(t, res.Err)
	assert.Equal(t, "a.bin", name)
	assert.Equal(t, "AB", out.String())
}

func TestRunMultipartMissingFilename(t *testing.T) {
	body := "--BDY\r\n" +
		`Content-Disposition: form-data; name="file"` + "\r\n\r\n" +
		"AB\r\n--BDY--\r\n"

	p := New(nil)
	var out bytes.Buffer
	_, res := p.RunMultipart(strings.NewReader(body), "BDY", &out)
	assert.ErrorIs(t, res.Err, ErrNoFilename)
}

func TestRunMultipartBoundaryTooLong(t *testing.T) {
	p := New(nil)
	var out bytes.Buffer
	_, res := p.RunMultipart(strings.NewReader(""), strings.Repeat("x", TailBufferMax), &out)
	assert.ErrorIs(t, res.Err, ErrBoundaryTooLong)
}

func TestRingPushPopRoundTrip(t *testing.T) {
	r := NewRing(16)
	require.NoError(t, r.Push([]byte("hello")))
	buf := make([]byte, 5)
	n, done, err := r.Pop(buf, 0)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestRingCloseInputDrainsThenDone(t *testing.T) {
	r := NewRing(16)
	require.NoError(t, r.Push([]byte("hi")))
	r.CloseInput()

	buf := make([]byte, 2)
	n, done, err := r.Pop(buf, 0)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 2, n)

	n, done, err = r.Pop(buf, 0)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 0, n)
}

func TestRingFailWakesPushAndPop(t *testing.T) {
	r := NewRing(4)
	require.NoError(t, r.Push([]byte("abcd")))

	done := make(chan error, 1)
	go func() {
		done <- r.Push([]byte("e"))
	}()

	r.Fail(assert.AnError)
	err := <-done
	assert.ErrorIs(t, err, assert.AnError)

	// The consumer still drains whatever was already buffered before the
	// ring's terminal error surfaces (spec §4.4 cancellation).
	drain := make([]byte, 4)
	n, _, perr := r.Pop(drain, 0)
	require.NoError(t, perr)
	assert.Equal(t, 4, n)

	_, _, perr = r.Pop(make([]byte, 1), 0)
	assert.ErrorIs(t, perr, assert.AnError)
}
