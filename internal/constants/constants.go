// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultMatchThreshold is the Euclidean distance cutoff for embedding matches.
	// A candidate is kept only when its distance is strictly below this value.
	DefaultMatchThreshold = 0.6

	// DefaultHNSWCandidates is how many nearest neighbors the HNSW searcher pulls
	// from the graph before the exact distance check.
	DefaultHNSWCandidates = 16

	// DefaultVectorSearchLimit bounds the rows the pgvector searcher reads back.
	DefaultVectorSearchLimit = 64
)

// HNSW graph parameters
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16
)

// Recognition service constants
const (
	// DefaultRecognitionTimeout bounds a single call to the recognition service.
	DefaultRecognitionTimeout = 30 * time.Second

	// DefaultCatalogCacheTTL is how long an enrolled catalog snapshot is reused.
	DefaultCatalogCacheTTL = 30 * time.Second
)

// Upload limits
const (
	// MaxImageUploadSize is the maximum accepted size of an uploaded photo.
	MaxImageUploadSize = 32 << 20

	// MaxClassifierUploadSize is the maximum accepted size of a classifier model upload.
	MaxClassifierUploadSize = 1 << 30
)

// Processing constants
const (
	// DefaultEnrollWorkers is the default number of parallel enrollment uploads.
	DefaultEnrollWorkers = 4
)
