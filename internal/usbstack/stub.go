// Package usbstack provides a UsbStack implementation for local
// development and tests: it does not speak to a real USB controller, but
// models the same Start/Stop/Connected lifecycle contract the core
// expects from hardware, invoking a registered SCSI adapter's Attach/
// Detach hooks in-process.
package usbstack

import (
	"fmt"
	"sync"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// Callbacks is the concrete shape SdArbiter registers via
// SetUsbCallbacks/Start(callbacks any); Stub type-asserts against it.
type Callbacks struct {
	OnAttach func()
	OnDetach func()
}

// Stub is an in-process UsbStack: Start/Stop flip connected and invoke the
// registered callbacks synchronously, standing in for the real USB
// peripheral controller driver.
type Stub struct {
	mu        sync.Mutex
	connected bool
	callbacks Callbacks
}

// New creates a disconnected Stub.
func New() *Stub {
	return &Stub{}
}

// Start implements interfaces.UsbStack.
func (s *Stub) Start(callbacks any) error {
	cb, ok := callbacks.(Callbacks)
	if callbacks != nil && !ok {
		return fmt.Errorf("usbstack: unexpected callback type %T", callbacks)
	}
	s.mu.Lock()
	s.connected = true
	if ok {
		s.callbacks = cb
	}
	s.mu.Unlock()
	if ok && cb.OnAttach != nil {
		cb.OnAttach()
	}
	return nil
}

// Stop implements interfaces.UsbStack.
func (s *Stub) Stop() error {
	s.mu.Lock()
	s.connected = false
	cb := s.callbacks
	s.mu.Unlock()
	if cb.OnDetach != nil {
		cb.OnDetach()
	}
	return nil
}

// Connected implements interfaces.UsbStack.
func (s *Stub) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

var _ interfaces.UsbStack = (*Stub)(nil)
