// Package fsoverlay implements FilesystemOverlay against a real OS
// directory at a configurable mount point. Mount and Unmount only gate
// access to that directory; no kernel mount or bind mount is performed.
package fsoverlay

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yarrco/sdbridge/internal/interfaces"
)

// OS is a FilesystemOverlay backed by a directory on the host filesystem.
// Mount/Unmount track a liveness flag rather than performing an actual
// kernel mount: the directory itself is assumed to already be the SD
// card's mounted FAT32 volume (or a loop-mounted image in tests), matching
// how the arbiter treats mount/unmount as "make this path usable"/"make it
// off-limits" rather than a block-device-level operation.
type OS struct {
	root  string
	alive bool
}

// New creates an OS overlay rooted at root. Root must already exist.
func New(root string) *OS {
	return &OS{root: root}
}

// Mount marks the overlay live at mountPoint, which must equal root.
func (o *OS) Mount(mountPoint string) error {
	if mountPoint != o.root {
		return fmt.Errorf("fsoverlay: mount point %q does not match configured root %q", mountPoint, o.root)
	}
	if _, err := os.Stat(o.root); err != nil {
		return fmt.Errorf("fsoverlay: stat root %s: %w", o.root, err)
	}
	o.alive = true
	return nil
}

// Unmount marks the overlay no longer usable.
func (o *OS) Unmount() error {
	o.alive = false
	return nil
}

func (o *OS) resolve(path string) (string, error) {
	if !o.alive {
		return "", fmt.Errorf("fsoverlay: not mounted")
	}
	return filepath.Join(o.root, path), nil
}

// ListDir implements interfaces.FilesystemOverlay.
func (o *OS) ListDir(path string) ([]interfaces.DirEntry, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("fsoverlay: readdir %s: %w", abs, err)
	}
	out := make([]interfaces.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("fsoverlay: stat entry %s: %w", e.Name(), err)
		}
		out = append(out, interfaces.DirEntry{
			Name:  e.Name(),
			IsDir: e.IsDir(),
			Size:  info.Size(),
		})
	}
	return out, nil
}

// Stat implements interfaces.FilesystemOverlay.
func (o *OS) Stat(path string) (fs.FileInfo, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("fsoverlay: stat %s: %w", abs, err)
	}
	return info, nil
}

// OpenRead implements interfaces.FilesystemOverlay.
func (o *OS) OpenRead(path string) (io.ReadCloser, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("fsoverlay: open %s: %w", abs, err)
	}
	return f, nil
}

// OpenWrite implements interfaces.FilesystemOverlay, creating or
// truncating path.
func (o *OS) OpenWrite(path string) (io.WriteCloser, error) {
	abs, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fsoverlay: create %s: %w", abs, err)
	}
	return f, nil
}

// Unlink implements interfaces.FilesystemOverlay.
func (o *OS) Unlink(path string) error {
	abs, err := o.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("fsoverlay: remove %s: %w", abs, err)
	}
	return nil
}

// Mkdir implements interfaces.FilesystemOverlay.
func (o *OS) Mkdir(path string) error {
	abs, err := o.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		return fmt.Errorf("fsoverlay: mkdir %s: %w", abs, err)
	}
	return nil
}

// Rename implements interfaces.FilesystemOverlay; the spec only requires
// same-parent renames (spec §9 Open Question), so this is a straight
// os.Rename rather than a cross-directory move helper.
func (o *OS) Rename(oldPath, newPath string) error {
	oldAbs, err := o.resolve(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := o.resolve(newPath)
	if err != nil {
		return err
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("fsoverlay: rename %s -> %s: %w", oldAbs, newAbs, err)
	}
	return nil
}

var _ interfaces.FilesystemOverlay = (*OS)(nil)
