package scsi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarrco/sdbridge/internal/blockdev"
)

func TestUnitAttentionRaisedOncePerAttach(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	a := New(dev, 8, nil)
	a.Attach()

	ok, sense := a.TestUnitReady()
	assert.False(t, ok)
	assert.Equal(t, SenseUnitAttention, sense)

	ok, sense = a.TestUnitReady()
	assert.True(t, ok)
	assert.Equal(t, SenseNone, sense)

	ok, sense = a.TestUnitReady()
	assert.True(t, ok)
	assert.Equal(t, SenseNone, sense)
}

func TestTestUnitReadyNoMedia(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	a := New(dev, 8, nil)

	ok, sense := a.TestUnitReady()
	assert.False(t, ok)
	assert.Equal(t, SenseNotReady, sense)
}

func TestReadCapacity(t *testing.T) {
	dev := blockdev.NewMemory(512, 1000)
	a := New(dev, 8, nil)
	a.Attach()

	count, size, sense, ok := a.ReadCapacity()
	require.True(t, ok)
	assert.Equal(t, SenseNone, sense)
	assert.EqualValues(t, 1000, count)
	assert.EqualValues(t, 512, size)
}

func TestReadCapacityNoMedia(t *testing.T) {
	dev := blockdev.NewMemory(512, 1000)
	a := New(dev, 8, nil)

	_, _, sense, ok := a.ReadCapacity()
	assert.False(t, ok)
	assert.Equal(t, SenseNotReady, sense)
}

func TestWrite10ThenRead10Coherent(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	a := New(dev, 8, nil)
	a.Attach()

	pattern := []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	sense, ok := a.Write10(100%16, 10, pattern)
	require.True(t, ok)
	assert.Equal(t, SenseNone, sense)

	out := make([]byte, 512)
	sense, ok = a.Read10(100%16, 0, out)
	require.True(t, ok)
	assert.Equal(t, SenseNone, sense)
	assert.Equal(t, pattern, out[10:15])
}

func TestSynchronizeCacheAndPreventAllowRemoval(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	a := New(dev, 8, nil)
	a.Attach()

	_, ok := a.Write10(1, 0, []byte{1, 2, 3})
	require.True(t, ok)

	sense, ok := a.SynchronizeCache()
	require.True(t, ok)
	assert.Equal(t, SenseNone, sense)

	sense, ok = a.PreventAllowRemoval(true)
	require.True(t, ok)
	assert.Equal(t, SenseNone, sense)
}

func TestUnknownCommandSetsIllegalRequest(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	a := New(dev, 8, nil)

	sense, ok := a.UnknownCommand()
	assert.False(t, ok)
	assert.Equal(t, SenseIllegalRequest, sense)
	assert.Equal(t, SenseIllegalRequest, a.LastSense())
}

func TestModeSense(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	a := New(dev, 8, nil)

	length, sense, ok := a.ModeSense(true)
	require.True(t, ok)
	assert.Equal(t, SenseNone, sense)
	assert.EqualValues(t, 3, length)
}

func TestDetachFlushesAndClearsMedia(t *testing.T) {
	dev := blockdev.NewMemory(512, 16)
	a := New(dev, 8, nil)
	a.Attach()

	_, ok := a.Write10(2, 0, []byte{9, 9, 9})
	require.True(t, ok)

	require.NoError(t, a.Detach())
	assert.False(t, a.MediaPresent())

	out := make([]byte, 512)
	require.NoError(t, dev.ReadSectors(2, 1, out))
	assert.Equal(t, []byte{9, 9, 9}, out[:3])
}
