// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Lookup constants
const (
	// DefaultNeighbors is the default number of similar faces to return
	DefaultNeighbors = 10

	// MaxNeighbors caps the neighbor count a client may request
	MaxNeighbors = 100

	// DefaultSimilarityThreshold is the default minimum similarity percentage
	DefaultSimilarityThreshold = 60

	// DefaultSearchLimit is the default number of metadata search results
	DefaultSearchLimit = 20
)

// Image constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the embedding service
	MaxImageSize = 1920
)
