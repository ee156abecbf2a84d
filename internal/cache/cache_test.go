package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarrco/sdbridge/internal/blockdev"
)

func TestWriteThenReadSamelbaCoherent(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	c := New(dev, 8, nil)

	pattern := make([]byte, 5)
	for i := range pattern {
		pattern[i] = 0xAA
	}
	require.NoError(t, c.Write(100%16, 10, pattern))

	out := make([]byte, 512)
	require.NoError(t, c.Read(100%16, 0, out))
	assert.Equal(t, pattern, out[10:15])
}

func TestAlignedWriteThenAlignedRead(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	c := New(dev, 8, nil)

	buf := make([]byte, 512*2)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, c.Write(2, 0, buf))

	out := make([]byte, 512*2)
	require.NoError(t, c.Read(2, 0, out))
	assert.Equal(t, buf, out)
}

func TestAlignedWriteSupersedesDirtyCache(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	c := New(dev, 8, nil)

	require.NoError(t, c.Write(5, 10, []byte{0xFF, 0xFF}))

	aligned := make([]byte, 512)
	for i := range aligned {
		aligned[i] = 0x42
	}
	require.NoError(t, c.Write(5, 0, aligned))

	out := make([]byte, 512)
	require.NoError(t, c.Read(5, 0, out))
	assert.Equal(t, aligned, out)
}

func TestReadAheadWindowServesSmallSequentialReads(t *testing.T) {
	dev := blockdev.NewMemory(512, 32)
	full := make([]byte, 512*4)
	for i := range full {
		full[i] = byte(i % 251)
	}
	require.NoError(t, dev.WriteSectors(0, 4, full))

	c := New(dev, 8, nil)
	out := make([]byte, 512*2)
	require.NoError(t, c.Read(0, 0, out))
	assert.Equal(t, full[:512*2], out)

	out2 := make([]byte, 512)
	require.NoError(t, c.Read(2, 0, out2))
	assert.Equal(t, full[512*2:512*3], out2)
}

func TestFlushWritesBackDirtySector(t *testing.T) {
	dev := blockdev.NewMemory(512, 4)
	c := New(dev, 8, nil)

	require.NoError(t, c.Write(1, 0, []byte{1, 2, 3}))
	require.NoError(t, c.Flush())

	direct := make([]byte, 512)
	require.NoError(t, dev.ReadSectors(1, 1, direct))
	assert.Equal(t, []byte{1, 2, 3}, direct[:3])
}

func TestInvalidateDropsBothCaches(t *testing.T) {
	dev := blockdev.NewMemory(512, 4)
	c := New(dev, 8, nil)

	require.NoError(t, c.Write(1, 0, []byte{9, 9, 9}))
	require.NoError(t, c.Invalidate())
	assert.False(t, c.dirty.valid)
	assert.False(t, c.ra.valid)
}

func TestPartialWriteDifferentLbaFlushesPriorDirty(t *testing.T) {
	dev := blockdev.NewMemory(512, 4)
	c := New(dev, 8, nil)

	require.NoError(t, c.Write(0, 0, []byte{1, 2, 3}))
	require.NoError(t, c.Write(1, 0, []byte{4, 5, 6}))

	out := make([]byte, 512)
	require.NoError(t, dev.ReadSectors(0, 1, out))
	assert.Equal(t, []byte{1, 2, 3}, out[:3])
}
