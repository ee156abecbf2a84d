// Package arbiter implements the access-mode state machine that owns the
// SD card and guarantees the USB block interface and the host filesystem
// overlay are never both live at once.
package arbiter

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// Mode is the access-mode state published by the arbiter. Modeled on the
// teacher's per-tag state machine (internal/queue/runner.go TagState): a
// small integer enum read lock-free via an atomic word, mutated only under
// the arbiter's own lock.
type Mode uint32

const (
	ModeUsbExposed Mode = iota
	ModeAppMounted
	ModeTransition
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeUsbExposed:
		return "UsbExposed"
	case ModeAppMounted:
		return "AppMounted"
	case ModeTransition:
		return "Transition"
	case ModeError:
		return "Error"
	default:
		return fmt.Sprintf("Mode(%d)", uint32(m))
	}
}

var (
	// ErrBusy is returned when a guard fails: a file operation or upload is
	// in progress, or a with_app_fs guard is outstanding.
	ErrBusy = errors.New("arbiter: busy")
	// ErrAlreadyThere is returned when try_request's target equals the
	// current mode.
	ErrAlreadyThere = errors.New("arbiter: already in requested mode")
	// ErrFatal is returned when a transition failed and Mode was left at
	// ModeError; the caller must issue an explicit recovery request.
	ErrFatal = errors.New("arbiter: transition failed, mode is Error")
	// ErrNotMounted is returned by WithAppFS when Mode is not AppMounted.
	ErrNotMounted = errors.New("arbiter: filesystem not mounted")
	// ErrFileopBusy is wrapped alongside ErrBusy specifically when the
	// FsOpLock guard is what rejected the transition, so callers that need
	// to distinguish "a file mutation is in flight" from "an attach/detach
	// or with_app_fs guard is in flight" can do so with errors.Is, while
	// errors.Is(err, ErrBusy) still holds either way.
	ErrFileopBusy = errors.New("arbiter: busy, file operation in progress")
)

// FsOpLock is the non-blocking mutex over filesystem-mutation operations
// (spec §4.6): try-acquire only, held for the duration of one mutation.
type FsOpLock struct {
	mu sync.Mutex
}

// TryAcquire attempts to take the lock without blocking.
func (l *FsOpLock) TryAcquire() bool { return l.mu.TryLock() }

// Release releases the lock. Must only be called by the holder.
func (l *FsOpLock) Release() { l.mu.Unlock() }

// SdArbiter serializes all SD-card access between the USB block path and
// the HTTP filesystem path (spec §4.1).
type SdArbiter struct {
	mode atomic.Uint32

	// txMu is the ArbiterLock: short, covers mode transitions and the
	// FsOpLock/guard checks.
	txMu sync.Mutex

	// guardMu implements with_app_fs's shared read-guard: readers (file
	// operations in flight under AppMounted) take RLock; attach takes Lock
	// via TryLock so it never blocks, only fails with ErrBusy.
	guardMu sync.RWMutex

	FsOpLock *FsOpLock

	usb        interfaces.UsbStack
	fs         interfaces.FilesystemOverlay
	mountPoint string
	callbacks  any

	logger   interfaces.Logger
	observer interfaces.Observer
}

// New creates an SdArbiter starting in initial (spec §3: Mode is "created
// at boot from config, default UsbExposed"). observer may be nil, in which
// case transition/busy/fatal events are simply not reported.
func New(usb interfaces.UsbStack, fs interfaces.FilesystemOverlay, mountPoint string, initial Mode, logger interfaces.Logger, observer interfaces.Observer) *SdArbiter {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	a := &SdArbiter{
		FsOpLock:   &FsOpLock{},
		usb:        usb,
		fs:         fs,
		mountPoint: mountPoint,
		logger:     logger,
		observer:   observer,
	}
	a.mode.Store(uint32(initial))
	return a
}

// CurrentMode is a constant-time, lock-free read, safe from any context
// including USB SCSI callbacks.
func (a *SdArbiter) CurrentMode() Mode {
	return Mode(a.mode.Load())
}

// SetUsbCallbacks registers the SCSI/MSC callback set handed to UsbStack.Start
// on the next transition into ModeUsbExposed.
func (a *SdArbiter) SetUsbCallbacks(callbacks any) {
	a.callbacks = callbacks
}

// TryRequest attempts to transition to target. It never blocks: any guard
// failure returns ErrBusy immediately.
func (a *SdArbiter) TryRequest(target Mode) error {
	if target != ModeUsbExposed && target != ModeAppMounted {
		return fmt.Errorf("arbiter: invalid transition target %s", target)
	}

	a.txMu.Lock()
	defer a.txMu.Unlock()

	current := a.CurrentMode()
	if current == target {
		return ErrAlreadyThere
	}
	if current == ModeTransition {
		a.observer.ObserveArbiterBusy()
		return ErrBusy
	}

	if !a.FsOpLock.TryAcquire() {
		a.observer.ObserveArbiterBusy()
		return fmt.Errorf("%w: %w", ErrBusy, ErrFileopBusy)
	}
	releasedFsOp := false
	defer func() {
		if !releasedFsOp {
			a.FsOpLock.Release()
		}
	}()

	if !a.guardMu.TryLock() {
		a.observer.ObserveArbiterBusy()
		return ErrBusy
	}
	defer a.guardMu.Unlock()

	a.mode.Store(uint32(ModeTransition))

	var err error
	switch target {
	case ModeAppMounted:
		err = a.transitionToAppMounted()
	case ModeUsbExposed:
		err = a.transitionToUsbExposed()
	}

	a.FsOpLock.Release()
	releasedFsOp = true

	if err != nil {
		a.mode.Store(uint32(ModeError))
		a.observer.ObserveArbiterFatal()
		if a.logger != nil {
			a.logger.Printf("arbiter: transition to %s failed: %v", target, err)
		}
		return fmt.Errorf("arbiter: %w", ErrFatal)
	}

	a.mode.Store(uint32(target))
	a.observer.ObserveArbiterTransition()
	return nil
}

func (a *SdArbiter) transitionToAppMounted() error {
	if a.usb != nil {
		if err := a.usb.Stop(); err != nil {
			return fmt.Errorf("stop usb stack: %w", err)
		}
	}
	if a.fs != nil {
		if err := a.fs.Mount(a.mountPoint); err != nil {
			return fmt.Errorf("mount %s: %w", a.mountPoint, err)
		}
	}
	return nil
}

func (a *SdArbiter) transitionToUsbExposed() error {
	if a.fs != nil {
		if err := a.fs.Unmount(); err != nil {
			return fmt.Errorf("unmount %s: %w", a.mountPoint, err)
		}
	}
	if a.usb != nil {
		if err := a.usb.Start(a.callbacks); err != nil {
			return fmt.Errorf("start usb stack: %w", err)
		}
	}
	return nil
}

// SetError forces Mode into ModeError outside of a TryRequest transition,
// for a caller that detected a transport-level storage failure while
// operating through the mounted overlay (e.g. the self-test runner's
// write/read path) rather than a mismatch it can just report. Recovery
// requires an explicit TryRequest, same as a failed transition.
func (a *SdArbiter) SetError(cause error) {
	a.mode.Store(uint32(ModeError))
	a.observer.ObserveArbiterFatal()
	if a.logger != nil {
		a.logger.Printf("arbiter: forced into Error mode: %v", cause)
	}
}

// WithAppFS guarantees the mount point is live for the duration of f, by
// holding a shared read-guard on Mode that TryRequest(ModeUsbExposed) must
// acquire exclusively before it can proceed.
func WithAppFS[R any](a *SdArbiter, f func() (R, error)) (R, error) {
	var zero R
	if a.CurrentMode() != ModeAppMounted {
		return zero, ErrNotMounted
	}
	a.guardMu.RLock()
	defer a.guardMu.RUnlock()
	if a.CurrentMode() != ModeAppMounted {
		return zero, ErrNotMounted
	}
	return f()
}
