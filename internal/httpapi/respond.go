// Package httpapi exposes the arbiter, filesystem overlay, upload
// pipeline, and self-test runner as the JSON HTTP surface of spec §4.5,
// routed with gorilla/mux.
package httpapi

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/yarrco/sdbridge/internal/apierr"
	"github.com/yarrco/sdbridge/internal/arbiter"
	"github.com/yarrco/sdbridge/internal/pathguard"
	"github.com/yarrco/sdbridge/internal/upload"
)

type okResponse struct {
	OK   bool   `json:"ok"`
	Mode string `json:"mode,omitempty"`
}

type errResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func writeOKMode(w http.ResponseWriter, mode arbiter.Mode) {
	writeJSON(w, http.StatusOK, okResponse{OK: true, Mode: mode.String()})
}

// writeError translates err into the {"error":"<KIND>"} response of
// spec §7, mapping errors from the arbiter, pathguard, and upload packages
// onto the Kind tokens the HTTP clients key off of.
func writeError(w http.ResponseWriter, op string, err error) {
	kind, status := classify(op, err)
	writeJSON(w, status, errResponse{Error: string(kind)})
}

func classify(op string, err error) (apierr.Kind, int) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae.Kind, apierr.HTTPStatus(ae.Kind)
	}

	switch {
	case errors.Is(err, arbiter.ErrFileopBusy):
		return apierr.KindFileopInProgress, apierr.HTTPStatus(apierr.KindFileopInProgress)
	case errors.Is(err, arbiter.ErrNotMounted):
		return apierr.KindNotMounted, apierr.HTTPStatus(apierr.KindNotMounted)
	case errors.Is(err, arbiter.ErrBusy), errors.Is(err, arbiter.ErrAlreadyThere):
		return apierr.KindBusy, apierr.HTTPStatus(apierr.KindBusy)
	case errors.Is(err, arbiter.ErrFatal):
		return kindForOp(op), 500
	case errors.Is(err, pathguard.ErrBadPath):
		return apierr.KindBadPath, apierr.HTTPStatus(apierr.KindBadPath)
	case errors.Is(err, pathguard.ErrPathTooLong):
		return apierr.KindPathTooLong, apierr.HTTPStatus(apierr.KindPathTooLong)
	case errors.Is(err, pathguard.ErrBadName):
		return apierr.KindBadName, apierr.HTTPStatus(apierr.KindBadName)
	case errors.Is(err, upload.ErrNoBody):
		return apierr.KindNoBody, apierr.HTTPStatus(apierr.KindNoBody)
	case errors.Is(err, upload.ErrNoName):
		return apierr.KindNoName, apierr.HTTPStatus(apierr.KindNoName)
	case errors.Is(err, upload.ErrNoFilename):
		return apierr.KindNoFilename, apierr.HTTPStatus(apierr.KindNoFilename)
	case errors.Is(err, upload.ErrNoContentType):
		return apierr.KindNoContentType, apierr.HTTPStatus(apierr.KindNoContentType)
	case errors.Is(err, upload.ErrNoBoundary):
		return apierr.KindNoBoundary, apierr.HTTPStatus(apierr.KindNoBoundary)
	case errors.Is(err, upload.ErrBoundaryTooLong):
		return apierr.KindBoundaryTooLong, apierr.HTTPStatus(apierr.KindBoundaryTooLong)
	case errors.Is(err, upload.ErrHeaderTooLarge):
		return apierr.KindHeaderTooLarge, apierr.HTTPStatus(apierr.KindHeaderTooLarge)
	case errors.Is(err, upload.ErrBadMultipart):
		return apierr.KindBadMultipart, apierr.HTTPStatus(apierr.KindBadMultipart)
	case errors.Is(err, upload.ErrBadBody):
		return apierr.KindBadBody, apierr.HTTPStatus(apierr.KindBadBody)
	case errors.Is(err, fs.ErrNotExist):
		return apierr.KindNotFound, apierr.HTTPStatus(apierr.KindNotFound)
	default:
		return kindForOp(op), 500
	}
}

// kindForOp is the fallback I/O-failure Kind for an op that doesn't map to
// a more specific sentinel, keyed by the op name handlers pass in.
func kindForOp(op string) apierr.Kind {
	switch op {
	case "fs.mkdir":
		return apierr.KindMkdirFail
	case "fs.delete":
		return apierr.KindDeleteFail
	case "fs.rename":
		return apierr.KindRenameFail
	case "fs.upload", "fs.upload_raw":
		return apierr.KindWriteFail
	case "usb.attach":
		return apierr.KindAttachFail
	case "usb.detach":
		return apierr.KindDetachFail
	default:
		return apierr.KindOpenFail
	}
}
