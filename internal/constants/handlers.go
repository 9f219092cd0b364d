// Package constants provides shared constants used across the codebase.
package constants

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)

// Verify constants
const (
	// VerifyBatchSize is how many vectors the index verifier checks between progress updates
	VerifyBatchSize = 256
)
