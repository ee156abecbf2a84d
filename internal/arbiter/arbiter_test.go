package arbiter

import (
	"errors"
	"io"
	"io/fs"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

type fakeUsb struct {
	started, stopped  int
	startErr, stopErr error
	connected         bool
}

func (f *fakeUsb) Start(callbacks any) error {
	f.started++
	f.connected = true
	return f.startErr
}
func (f *fakeUsb) Stop() error {
	f.stopped++
	f.connected = false
	return f.stopErr
}
func (f *fakeUsb) Connected() bool { return f.connected }

type fakeFs struct {
	mounted              bool
	mountErr, unmountErr error
}

func (f *fakeFs) Mount(string) error { f.mounted = true; return f.mountErr }
func (f *fakeFs) Unmount() error     { f.mounted = false; return f.unmountErr }
func (f *fakeFs) ListDir(string) ([]interfaces.DirEntry, error)   { return nil, nil }
func (f *fakeFs) Stat(string) (fs.FileInfo, error)                { return nil, nil }
func (f *fakeFs) OpenRead(string) (io.ReadCloser, error)          { return nil, nil }
func (f *fakeFs) OpenWrite(string) (io.WriteCloser, error)        { return nil, nil }
func (f *fakeFs) Unlink(string) error                             { return nil }
func (f *fakeFs) Mkdir(string) error                              { return nil }
func (f *fakeFs) Rename(string, string) error                     { return nil }

var (
	_ interfaces.UsbStack          = (*fakeUsb)(nil)
	_ interfaces.FilesystemOverlay = (*fakeFs)(nil)
)

type countingObserver struct {
	interfaces.NoOpObserver
	transitions, busy, fatal int
}

func (o *countingObserver) ObserveArbiterTransition() { o.transitions++ }
func (o *countingObserver) ObserveArbiterBusy()        { o.busy++ }
func (o *countingObserver) ObserveArbiterFatal()       { o.fatal++ }

func TestTryRequestReportsObserverEvents(t *testing.T) {
	obs := &countingObserver{}
	a := New(&fakeUsb{connected: true}, &fakeFs{}, "/sdcard", ModeUsbExposed, nil, obs)

	require.NoError(t, a.TryRequest(ModeAppMounted))
	assert.Equal(t, 1, obs.transitions)

	require.True(t, a.FsOpLock.TryAcquire())
	assert.ErrorIs(t, a.TryRequest(ModeUsbExposed), ErrBusy)
	a.FsOpLock.Release()
	assert.Equal(t, 1, obs.busy)

	usb := &fakeUsb{startErr: errors.New("wedged")}
	b := New(usb, &fakeFs{}, "/sdcard", ModeAppMounted, nil, obs)
	assert.ErrorIs(t, b.TryRequest(ModeUsbExposed), ErrFatal)
	assert.Equal(t, 1, obs.fatal)
}

func TestTryRequestDetachThenAttach(t *testing.T) {
	usb := &fakeUsb{connected: true}
	fs := &fakeFs{}
	a := New(usb, fs, "/sdcard", ModeUsbExposed, nil, nil)

	require.NoError(t, a.TryRequest(ModeAppMounted))
	assert.Equal(t, ModeAppMounted, a.CurrentMode())
	assert.True(t, fs.mounted)
	assert.Equal(t, 1, usb.stopped)

	require.NoError(t, a.TryRequest(ModeUsbExposed))
	assert.Equal(t, ModeUsbExposed, a.CurrentMode())
	assert.False(t, fs.mounted)
	assert.Equal(t, 1, usb.started)
}

func TestTryRequestAlreadyThere(t *testing.T) {
	a := New(&fakeUsb{}, &fakeFs{}, "/sdcard", ModeUsbExposed, nil, nil)
	err := a.TryRequest(ModeUsbExposed)
	assert.ErrorIs(t, err, ErrAlreadyThere)
}

func TestTryRequestBusyWhileFsOpLockHeld(t *testing.T) {
	a := New(&fakeUsb{}, &fakeFs{}, "/sdcard", ModeAppMounted, nil, nil)
	require.True(t, a.FsOpLock.TryAcquire())
	defer a.FsOpLock.Release()

	err := a.TryRequest(ModeUsbExposed)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, ModeAppMounted, a.CurrentMode())
}

func TestTryRequestFatalOnTransitionFailure(t *testing.T) {
	usb := &fakeUsb{startErr: errors.New("usb stack wedged")}
	a := New(usb, &fakeFs{}, "/sdcard", ModeAppMounted, nil, nil)

	err := a.TryRequest(ModeUsbExposed)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, ModeError, a.CurrentMode())

	err = a.TryRequest(ModeUsbExposed)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestWithAppFSRejectsWhenNotMounted(t *testing.T) {
	a := New(&fakeUsb{}, &fakeFs{}, "/sdcard", ModeUsbExposed, nil, nil)
	_, err := WithAppFS(a, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestWithAppFSBlocksAttach(t *testing.T) {
	a := New(&fakeUsb{}, &fakeFs{}, "/sdcard", ModeAppMounted, nil, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = WithAppFS(a, func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()

	<-started
	err := a.TryRequest(ModeUsbExposed)
	assert.ErrorIs(t, err, ErrBusy)
	close(release)
	wg.Wait()
}

func TestFsOpLockTryAcquire(t *testing.T) {
	var l FsOpLock
	require.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
