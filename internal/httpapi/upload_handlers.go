package httpapi

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/yarrco/sdbridge/internal/apierr"
	"github.com/yarrco/sdbridge/internal/constants"
	"github.com/yarrco/sdbridge/internal/pathguard"
)

// syncer is implemented by FilesystemOverlay write handles that support an
// explicit fsync before close (spec §4.4 step 3 "flush + fsync"); checked
// with a type assertion so interfaces.FilesystemOverlay itself stays
// narrow for implementations (e.g. in-memory test fakes) that don't need
// one.
type syncer interface {
	Sync() error
}

// stageFixedName is the staging filename used for multipart uploads,
// whose final name is only known once the part header has been scanned
// (spec §4.4 step 1). A fixed name is safe because FsOpLock admits only
// one mutation system-wide at a time (spec §4.6), so no two uploads ever
// contend for it.
const stageFixedName = ".sdbridge-upload-inflight.part"

// handleUploadRaw implements POST /api/fs/upload_raw (spec §4.4 "Raw").
func (s *Server) handleUploadRaw(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reqPath := q.Get("path")
	name := q.Get("name")
	overwrite := queryBool(q, "overwrite")

	if name == "" {
		writeError(w, "fs.upload_raw", apierr.NewError("fs.upload_raw", apierr.KindNoName, "name required"))
		return
	}
	if r.ContentLength == 0 {
		writeError(w, "fs.upload_raw", apierr.NewError("fs.upload_raw", apierr.KindNoBody, "empty body"))
		return
	}

	s.requireMutation(w, "fs.upload_raw", func() error {
		if err := pathguard.ValidateName(name); err != nil {
			return err
		}
		dir, _, err := s.Guard.Resolve(reqPath)
		if err != nil {
			return err
		}
		target := path.Join(dir, name)
		staging := target + constants.StagingSuffix

		if err := s.checkOverwrite("fs.upload_raw", target, overwrite); err != nil {
			return err
		}

		wc, err := s.FS.OpenWrite(staging)
		if err != nil {
			return apierr.WrapError("fs.upload_raw", apierr.KindOpenFail, err)
		}

		res := s.Upload.RunRaw(r.Body, wc)
		if res.Err == nil && res.BytesIn == 0 {
			res.Err = apierr.NewPathError("fs.upload_raw", target, apierr.KindNoBody, "empty body")
		}
		if err := s.finishUpload(wc, staging, target, res.Err); err != nil {
			return err
		}
		writeOK(w)
		return nil
	})
}

// handleUploadMultipart implements POST /api/fs/upload (spec §4.4
// "Multipart").
func (s *Server) handleUploadMultipart(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		writeError(w, "fs.upload", apierr.NewError("fs.upload", apierr.KindNoContentType, "missing content-type"))
		return
	}
	boundary, berr := extractBoundary(contentType)
	if berr != nil {
		writeError(w, "fs.upload", berr)
		return
	}

	reqPath := r.URL.Query().Get("path")

	s.requireMutation(w, "fs.upload", func() error {
		dir, _, err := s.Guard.Resolve(reqPath)
		if err != nil {
			return err
		}
		staging := path.Join(dir, stageFixedName)

		wc, err := s.FS.OpenWrite(staging)
		if err != nil {
			return apierr.WrapError("fs.upload", apierr.KindOpenFail, err)
		}

		filename, res := s.Upload.RunMultipart(r.Body, boundary, wc)
		uerr := res.Err
		if uerr == nil && filename == "" {
			uerr = apierr.NewError("fs.upload", apierr.KindNoFilename, "missing filename")
		}
		if uerr == nil {
			if verr := pathguard.ValidateName(filename); verr != nil {
				uerr = verr
			}
		}
		if uerr != nil {
			wc.Close()
			_ = s.FS.Unlink(staging)
			s.Observer.ObserveUploadResult(false)
			return uerr
		}

		target := path.Join(dir, filename)
		if err := s.checkOverwriteAfterStage(target, staging, wc); err != nil {
			s.Observer.ObserveUploadResult(false)
			return err
		}

		if err := s.finishUpload(wc, staging, target, nil); err != nil {
			return err
		}
		writeOK(w)
		return nil
	})
}

// checkOverwrite applies spec §4.4's overwrite edge cases before a staging
// file is opened (used by the raw path, where the target name is known up
// front).
func (s *Server) checkOverwrite(op, target string, overwrite bool) error {
	info, err := s.FS.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apierr.WrapError(op, apierr.KindOpenFail, err)
	}
	if info.IsDir() {
		return apierr.NewPathError(op, target, apierr.KindIsDirectory, "target is a directory")
	}
	if !overwrite {
		return apierr.NewPathError(op, target, apierr.KindFileExists, "target exists")
	}
	if err := s.FS.Unlink(target); err != nil {
		return apierr.WrapError(op, apierr.KindDeleteFail, err)
	}
	return nil
}

// checkOverwriteAfterStage applies the same overwrite rule as
// checkOverwrite but after the staging file already has data in it
// (multipart path, where the name is only known post-hoc): on rejection
// the staging file is cleaned up before returning. Multipart requests
// carry no overwrite flag, so an existing target is always an error.
func (s *Server) checkOverwriteAfterStage(target, staging string, wc io.WriteCloser) error {
	info, err := s.FS.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		wc.Close()
		_ = s.FS.Unlink(staging)
		return apierr.WrapError("fs.upload", apierr.KindOpenFail, err)
	}
	wc.Close()
	_ = s.FS.Unlink(staging)
	if info.IsDir() {
		return apierr.NewPathError("fs.upload", target, apierr.KindIsDirectory, "target is a directory")
	}
	return apierr.NewPathError("fs.upload", target, apierr.KindFileExists, "target exists")
}

// finishUpload flushes, syncs, and closes the staging handle, then renames
// it to target on success or deletes it on failure (spec §4.4 step 3,
// §6 "Uploaded file layout"). uploadErr is the first error observed by the
// pipeline (nil on success); finishUpload's own I/O errors take priority
// over a nil uploadErr but never mask a non-nil one.
func (s *Server) finishUpload(wc io.WriteCloser, staging, target string, uploadErr error) error {
	if sy, ok := wc.(syncer); ok && uploadErr == nil {
		if err := sy.Sync(); err != nil {
			uploadErr = apierr.WrapError("fs.upload", apierr.KindWriteFail, err)
		}
	}
	closeErr := wc.Close()
	if uploadErr == nil && closeErr != nil {
		uploadErr = apierr.WrapError("fs.upload", apierr.KindWriteFail, closeErr)
	}

	if uploadErr != nil {
		_ = s.FS.Unlink(staging)
		s.Observer.ObserveUploadResult(false)
		return uploadErr
	}

	if err := s.FS.Rename(staging, target); err != nil {
		_ = s.FS.Unlink(staging)
		s.Observer.ObserveUploadResult(false)
		return apierr.WrapError("fs.upload", apierr.KindRenameFail, err)
	}
	s.Observer.ObserveUploadResult(true)
	return nil
}

func extractBoundary(contentType string) (string, error) {
	lower := strings.ToLower(contentType)
	if !strings.HasPrefix(lower, "multipart/form-data") {
		return "", apierr.NewError("fs.upload", apierr.KindNoContentType, "not multipart/form-data")
	}
	const key = "boundary="
	idx := strings.Index(contentType, key)
	if idx < 0 {
		return "", apierr.NewError("fs.upload", apierr.KindNoBoundary, "missing boundary")
	}
	b := contentType[idx+len(key):]
	if semi := strings.IndexByte(b, ';'); semi >= 0 {
		b = b[:semi]
	}
	b = strings.TrimSpace(b)
	b = strings.Trim(b, `"`)
	if b == "" {
		return "", apierr.NewError("fs.upload", apierr.KindNoBoundary, "empty boundary")
	}
	if len(b) > constants.MultipartTailBufferSize-1 {
		return "", apierr.NewError("fs.upload", apierr.KindBoundaryTooLong, "boundary too long")
	}
	return b, nil
}
