// Package constants centralizes the sizing and timing constants used
// throughout the SD-card bridge, mirroring the teacher's
// internal/constants package.
package constants

import "time"

const (
	// DefaultSectorSize is the logical sector size assumed when a
	// BlockDevice does not report one some other way (spec glossary:
	// "typically 512 bytes").
	DefaultSectorSize = 512

	// ReadAheadSectors is N in the spec §3 ReadAhead window: the number of
	// sectors pulled in on a small aligned sequential read.
	ReadAheadSectors = 8

	// UploadScratchReadSize is the producer's per-iteration read size from
	// the HTTP request body (spec §4.4 step 1).
	UploadScratchReadSize = 32 * 1024

	// UploadRingSizePreferred and UploadRingSizeFallback are the ring
	// buffer sizes tried in order (spec §4.4 "Ring sizing").
	UploadRingSizePreferred = 512 * 1024
	UploadRingSizeFallback  = 256 * 1024

	// MultipartHeaderBufferSize bounds the accumulated part header before
	// \r\n\r\n must appear (spec §4.4 edge cases).
	MultipartHeaderBufferSize = 16 * 1024

	// MultipartTailBufferSize bounds the boundary marker carried between
	// producer iterations (spec §4.4 edge cases).
	MultipartTailBufferSize = 128

	// PathMaxBytes and NameMaxBytes are the PathGuard hard limits
	// (spec §4.7 step 8).
	PathMaxBytes = 256
	NameMaxBytes = 96

	// StagingSuffix is appended to the target name while an upload is in
	// flight (spec §6 "Uploaded file layout").
	StagingSuffix = ".part"
)

const (
	// ConsumerPollTimeout is how long the upload consumer blocks on the
	// ring before re-checking input_done (spec §4.4 "Back-pressure").
	ConsumerPollTimeout = 200 * time.Millisecond

	// ConsumerMinWriteSize is the minimum buffered-write size the
	// consumer targets before flushing to the temp file (spec §4.4 step 2,
	// "large (>= 32 KiB) file-buffered writes").
	ConsumerMinWriteSize = 32 * 1024
)
