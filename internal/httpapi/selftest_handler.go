package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yarrco/sdbridge/internal/apierr"
)

// defaultSelftestSize is used when the request omits ?size_bytes.
const defaultSelftestSize = 1 << 20 // 1 MiB

type selftestResponse struct {
	OK           bool    `json:"ok"`
	WriteBps     float64 `json:"write_bps,omitempty"`
	ReadBps      float64 `json:"read_bps,omitempty"`
	BytesWritten int64   `json:"bytes_written,omitempty"`
	BytesRead    int64   `json:"bytes_read,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// handleSelftestRun implements POST /api/selftest/run (SPEC_FULL.md §4.8):
// gated identically to any other FS mutation, it writes, reads back, and
// verifies a scratch file through the mounted overlay and reports
// throughput. A verification mismatch is reported in the body as
// ok:false, not as an HTTP error. A transport-level failure (the write or
// read itself erroring, as opposed to the bytes round-tripping but not
// matching) escalates Mode to Error the same way any other FS I/O failure
// reaching the arbiter does.
func (s *Server) handleSelftestRun(w http.ResponseWriter, r *http.Request) {
	size := int64(defaultSelftestSize)
	if v := r.URL.Query().Get("size_bytes"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, "selftest.run", apierr.NewError("selftest.run", apierr.KindBadBody, "invalid size_bytes"))
			return
		}
		size = parsed
	}

	s.requireMutation(w, "selftest.run", func() error {
		report, err := s.Selftest.Run(r.Context(), size)
		if err != nil {
			s.Arbiter.SetError(err)
			return apierr.WrapError("selftest.run", apierr.KindWriteFail, err)
		}

		resp := selftestResponse{
			OK:           !report.Corrupted,
			WriteBps:     report.WriteBytesPerSec,
			ReadBps:      report.ReadBytesPerSec,
			BytesWritten: report.BytesWritten,
			BytesRead:    report.BytesRead,
		}
		if report.Corrupted {
			resp.Error = "selftest verification mismatch"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return json.NewEncoder(w).Encode(resp)
	})
}
