package identify

import (
	"context"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

// Searcher finds enrolled attendees strictly closer than threshold to a query embedding,
// closest first.
type Searcher interface {
	Search(ctx context.Context, query []float64, threshold float64) ([]facematch.Candidate, error)
}

// Invalidator is implemented by searchers and caches that must drop state after an enrollment.
type Invalidator interface {
	Invalidate()
}

// ScanSearcher ranks the whole catalog on every search.
type ScanSearcher struct {
	catalog database.CatalogReader
}

// NewScanSearcher creates a searcher over catalog.
func NewScanSearcher(catalog database.CatalogReader) *ScanSearcher {
	return &ScanSearcher{catalog: catalog}
}

// Search loads the catalog and ranks it against query.
func (s *ScanSearcher) Search(ctx context.Context, query []float64, threshold float64) ([]facematch.Candidate, error) {
	catalog, err := s.catalog.AllWithEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return facematch.Rank(query, catalog, threshold)
}

var (
	_ Searcher = (*ScanSearcher)(nil)
	_ Searcher = (*facematch.HNSWIndex)(nil)
)
