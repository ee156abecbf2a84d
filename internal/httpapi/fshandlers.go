package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/yarrco/sdbridge/internal/apierr"
	"github.com/yarrco/sdbridge/internal/arbiter"
	"github.com/yarrco/sdbridge/internal/pathguard"
)

// gateKind reports the Kind to surface when the arbiter is not in
// ModeAppMounted (spec §4.5 step 1): Busy when USB currently owns the
// card, NotMounted otherwise (Transition/Error).
func gateKind(mode arbiter.Mode) apierr.Kind {
	if mode == arbiter.ModeUsbExposed {
		return apierr.KindBusy
	}
	return apierr.KindNotMounted
}

func writeGateError(w http.ResponseWriter, mode arbiter.Mode) {
	k := gateKind(mode)
	writeJSON(w, apierr.HTTPStatus(k), errResponse{Error: string(k)})
}

// requireAppMounted is the read-only gate used by list/download: it does
// not take FsOpLock (spec §4.5/§4.6 reserve that for mutations) but does
// hold the arbiter's shared read-guard for the duration of f so an attach
// cannot race a read in flight.
func (s *Server) requireAppMounted(w http.ResponseWriter, f func() error) {
	if s.Arbiter.CurrentMode() != arbiter.ModeAppMounted {
		writeGateError(w, s.Arbiter.CurrentMode())
		return
	}
	_, err := arbiter.WithAppFS(s.Arbiter, func() (struct{}, error) {
		return struct{}{}, f()
	})
	if err != nil {
		if errors.Is(err, arbiter.ErrNotMounted) {
			writeGateError(w, s.Arbiter.CurrentMode())
			return
		}
		writeError(w, "fs.read", err)
	}
}

// requireMutation is the gate used by mkdir/delete/rename/upload: it
// checks the arbiter mode, then try-acquires FsOpLock for the duration of
// f, releasing it on every exit path (spec §4.5 steps 1-2, §4.6).
func (s *Server) requireMutation(w http.ResponseWriter, op string, f func() error) {
	if s.Arbiter.CurrentMode() != arbiter.ModeAppMounted {
		writeGateError(w, s.Arbiter.CurrentMode())
		return
	}
	if !s.Arbiter.FsOpLock.TryAcquire() {
		writeJSON(w, apierr.HTTPStatus(apierr.KindFileopInProgress), errResponse{Error: string(apierr.KindFileopInProgress)})
		return
	}
	defer s.Arbiter.FsOpLock.Release()

	if s.Arbiter.CurrentMode() != arbiter.ModeAppMounted {
		writeGateError(w, s.Arbiter.CurrentMode())
		return
	}

	if err := f(); err != nil {
		writeError(w, op, err)
		return
	}
}

type listItem struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size *int64 `json:"size,omitempty"`
}

type listResponse struct {
	Path  string     `json:"path"`
	Items []listItem `json:"items"`
}

// handleList implements GET /api/fs/list (spec §4.5). The whole listing is
// collected first and then written as one JSON object.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	reqPath := r.URL.Query().Get("path")

	s.requireAppMounted(w, func() error {
		vpath, _, err := s.Guard.Resolve(reqPath)
		if err != nil {
			return err
		}
		entries, err := s.FS.ListDir(vpath)
		if err != nil {
			return apierr.WrapError("fs.list", apierr.KindOpenFail, err)
		}

		items := make([]listItem, 0, len(entries))
		for _, e := range entries {
			it := listItem{Name: e.Name, Type: "file"}
			if e.IsDir {
				it.Type = "dir"
			} else {
				size := e.Size
				it.Size = &size
			}
			items = append(items, it)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		return enc.Encode(listResponse{Path: vpath, Items: items})
	})
}

type mkdirRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// handleMkdir implements POST /api/fs/mkdir.
func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req mkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "fs.mkdir", apierr.NewError("fs.mkdir", apierr.KindBadBody, "invalid json"))
		return
	}
	if req.Path == "" {
		writeError(w, "fs.mkdir", apierr.NewError("fs.mkdir", apierr.KindPathRequired, "path required"))
		return
	}
	if req.Name == "" {
		writeError(w, "fs.mkdir", apierr.NewError("fs.mkdir", apierr.KindNameRequired, "name required"))
		return
	}

	s.requireMutation(w, "fs.mkdir", func() error {
		if err := pathguard.ValidateName(req.Name); err != nil {
			return err
		}
		parent, _, err := s.Guard.Resolve(req.Path)
		if err != nil {
			return err
		}
		vpath, _, err := s.Guard.Resolve(path.Join(parent, req.Name))
		if err != nil {
			return err
		}
		if err := s.FS.Mkdir(vpath); err != nil {
			return apierr.WrapError("fs.mkdir", apierr.KindMkdirFail, err)
		}
		writeOK(w)
		return nil
	})
}

type deleteRequest struct {
	Path string `json:"path"`
}

// handleDelete implements POST /api/fs/delete. Directory deletes are out
// of scope (spec §9 Open Question, preserved from the source): a target
// that stats as a directory is refused with IS_DIRECTORY.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "fs.delete", apierr.NewError("fs.delete", apierr.KindBadBody, "invalid json"))
		return
	}
	if req.Path == "" {
		writeError(w, "fs.delete", apierr.NewError("fs.delete", apierr.KindPathRequired, "path required"))
		return
	}

	s.requireMutation(w, "fs.delete", func() error {
		vpath, _, err := s.Guard.Resolve(req.Path)
		if err != nil {
			return err
		}
		info, err := s.FS.Stat(vpath)
		if err != nil {
			return apierr.WrapError("fs.delete", apierr.KindNotFound, err)
		}
		if info.IsDir() {
			return apierr.NewPathError("fs.delete", vpath, apierr.KindIsDirectory, "directory delete not supported")
		}
		if err := s.FS.Unlink(vpath); err != nil {
			return apierr.WrapError("fs.delete", apierr.KindDeleteFail, err)
		}
		writeOK(w)
		return nil
	})
}

type renameRequest struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

// handleRename implements POST /api/fs/rename. Only same-parent renames
// are supported (spec §9 Open Question, preserved from the source): the
// request carries a new_name, not a destination path.
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "fs.rename", apierr.NewError("fs.rename", apierr.KindBadBody, "invalid json"))
		return
	}
	if req.Path == "" {
		writeError(w, "fs.rename", apierr.NewError("fs.rename", apierr.KindPathRequired, "path required"))
		return
	}
	if req.NewName == "" {
		writeError(w, "fs.rename", apierr.NewError("fs.rename", apierr.KindNewNameRequired, "new_name required"))
		return
	}

	s.requireMutation(w, "fs.rename", func() error {
		if err := pathguard.ValidateName(req.NewName); err != nil {
			return err
		}
		oldPath, _, err := s.Guard.Resolve(req.Path)
		if err != nil {
			return err
		}
		newPath, _, err := s.Guard.Resolve(path.Join(path.Dir(oldPath), req.NewName))
		if err != nil {
			return err
		}
		if err := s.FS.Rename(oldPath, newPath); err != nil {
			return apierr.WrapError("fs.rename", apierr.KindRenameFail, err)
		}
		writeOK(w)
		return nil
	})
}

// handleDownload implements GET /api/fs/download, streaming the file body
// in chunks rather than buffering it whole (spec §4.5).
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	reqPath := r.URL.Query().Get("path")

	s.requireAppMounted(w, func() error {
		vpath, _, err := s.Guard.Resolve(reqPath)
		if err != nil {
			return err
		}
		info, err := s.FS.Stat(vpath)
		if err != nil {
			return apierr.WrapError("fs.download", apierr.KindNotFound, err)
		}
		if info.IsDir() {
			return apierr.NewPathError("fs.download", vpath, apierr.KindIsDirectory, "cannot download a directory")
		}
		rc, err := s.FS.OpenRead(vpath)
		if err != nil {
			return apierr.WrapError("fs.download", apierr.KindOpenFail, err)
		}
		defer rc.Close()

		name := path.Base(vpath)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, escapeFilename(name)))
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, rc)
		return err
	})
}

// escapeFilename strips characters that would break the quoted
// Content-Disposition filename parameter.
func escapeFilename(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, `\`, ""), `"`, "")
}

// handleUsbAttach implements POST /api/usb/attach.
func (s *Server) handleUsbAttach(w http.ResponseWriter, r *http.Request) {
	if err := s.AttachUSB(); err != nil {
		writeError(w, "usb.attach", err)
		return
	}
	writeOKMode(w, s.Arbiter.CurrentMode())
}

// handleUsbDetach implements POST /api/usb/detach.
func (s *Server) handleUsbDetach(w http.ResponseWriter, r *http.Request) {
	if err := s.DetachUSB(); err != nil {
		writeError(w, "usb.detach", err)
		return
	}
	writeOKMode(w, s.Arbiter.CurrentMode())
}

// queryBool parses an "0"/"1"/"true"/"false" query flag, defaulting to
// false for anything else including absence.
func queryBool(values url.Values, key string) bool {
	v := values.Get(key)
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
