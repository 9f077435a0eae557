// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Recognition constants
const (
	// MatchThreshold is the minimum cosine similarity for a probe to be
	// accepted as an enrolled employee. The comparison is strict (>).
	MatchThreshold = 0.35

	// MaxImageSize is the maximum dimension (width or height) for image processing
	MaxImageSize = 1920

	// ReferenceImageExtensions are the file types picked up from the image directory
	ReferenceImageExtensions = ".png,.jpg,.jpeg,.bmp,.tif,.tiff"
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel detector calls during index builds
	WorkerPoolSize = 4

	// DetectionTimeout bounds one call to the external detector or liveness service
	DetectionTimeout = 15 * time.Second
)

// Backup constants
const (
	// UploadQueueSize is the number of artifacts that may wait for off-site upload
	UploadQueueSize = 16

	// ProbeTimeout bounds the connectivity check before uploads
	ProbeTimeout = 3 * time.Second

	// MinBackupFreeBytes is the free space a partition needs to be picked as backup root
	MinBackupFreeBytes = 256 << 20

	// MaxUploadRecords caps the upload history kept for the status API
	MaxUploadRecords = 100
)

// Detection loop constants
const (
	// EmptyRebuildBackoff spaces out rebuild attempts while the index stays empty
	EmptyRebuildBackoff = 30 * time.Second
)
