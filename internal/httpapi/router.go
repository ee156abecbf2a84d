// Package httpapi exposes the arbiter, filesystem overlay, upload
// pipeline, and self-test runner as the JSON HTTP surface of spec §4.5,
// routed with gorilla/mux.
package httpapi

import (
	"github.com/gorilla/mux"

	"github.com/yarrco/sdbridge/internal/arbiter"
	"github.com/yarrco/sdbridge/internal/interfaces"
	"github.com/yarrco/sdbridge/internal/pathguard"
	"github.com/yarrco/sdbridge/internal/selftest"
	"github.com/yarrco/sdbridge/internal/upload"
)

// Server holds everything a request handler needs to translate an HTTP
// request into a path-safe filesystem call (spec §4.5 FsHandlers): the
// arbiter gate, the PathGuard, the mounted overlay, and the upload
// pipeline. One Server is created at boot and shared across every request.
type Server struct {
	Arbiter  *arbiter.SdArbiter
	Guard    *pathguard.Guard
	FS       interfaces.FilesystemOverlay
	Upload   *upload.Pipeline
	Selftest *selftest.Runner
	Logger   interfaces.Logger
	Observer interfaces.Observer

	// AttachUSB and DetachUSB drive the arbiter's mode transitions; kept
	// as closures rather than a direct arbiter.TryRequest call so main can
	// wire in the scsi.Adapter's Attach/Detach hooks around the
	// transition without this package importing internal/scsi.
	AttachUSB func() error
	DetachUSB func() error
}

// New creates a Server. usb attach/detach are delegated to attachUSB and
// detachUSB, which must themselves call Arbiter.TryRequest.
func New(a *arbiter.SdArbiter, guard *pathguard.Guard, fs interfaces.FilesystemOverlay, pipeline *upload.Pipeline, runner *selftest.Runner, logger interfaces.Logger, observer interfaces.Observer, attachUSB, detachUSB func() error) *Server {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Server{
		Arbiter:   a,
		Guard:     guard,
		FS:        fs,
		Upload:    pipeline,
		Selftest:  runner,
		Logger:    logger,
		Observer:  observer,
		AttachUSB: attachUSB,
		DetachUSB: detachUSB,
	}
}

// Router builds the gorilla/mux router for every endpoint in spec §4.5.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	fsRouter := api.PathPrefix("/fs").Subrouter()
	fsRouter.HandleFunc("/list", s.handleList).Methods("GET")
	fsRouter.HandleFunc("/mkdir", s.handleMkdir).Methods("POST")
	fsRouter.HandleFunc("/delete", s.handleDelete).Methods("POST")
	fsRouter.HandleFunc("/rename", s.handleRename).Methods("POST")
	fsRouter.HandleFunc("/download", s.handleDownload).Methods("GET")
	fsRouter.HandleFunc("/upload", s.handleUploadMultipart).Methods("POST")
	fsRouter.HandleFunc("/upload_raw", s.handleUploadRaw).Methods("POST")

	usbRouter := api.PathPrefix("/usb").Subrouter()
	usbRouter.HandleFunc("/attach", s.handleUsbAttach).Methods("POST")
	usbRouter.HandleFunc("/detach", s.handleUsbDetach).Methods("POST")

	api.HandleFunc("/selftest/run", s.handleSelftestRun).Methods("POST")

	return r
}
