package constants

// Handler constants
const (
	// DefaultLogLimit caps attendance log listings when no limit is given
	DefaultLogLimit = 500

	// MaxLogLimit is the largest limit a client may request
	MaxLogLimit = 5000
)

// File upload constants
const (
	// MaxUploadSize is the maximum reference photo upload size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// MaxFrameSize is the maximum camera frame size in bytes (8MB)
	MaxFrameSize = 8 << 20
)
