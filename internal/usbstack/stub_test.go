package usbstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartStopTogglesConnected(t *testing.T) {
	s := New()
	assert.False(t, s.Connected())

	require.NoError(t, s.Start(Callbacks{}))
	assert.True(t, s.Connected())

	require.NoError(t, s.Stop())
	assert.False(t, s.Connected())
}

func TestStartInvokesOnAttach(t *testing.T) {
	s := New()
	attached := false
	require.NoError(t, s.Start(Callbacks{OnAttach: func() { attached = true }}))
	assert.True(t, attached)
}

func TestStopInvokesOnDetach(t *testing.T) {
	s := New()
	detached := false
	require.NoError(t, s.Start(Callbacks{OnDetach: func() { detached = true }}))
	require.NoError(t, s.Stop())
	assert.True(t, detached)
}

func TestStartRejectsWrongCallbackType(t *testing.T) {
	s := New()
	err := s.Start("not-a-callbacks-struct")
	assert.Error(t, err)
}
