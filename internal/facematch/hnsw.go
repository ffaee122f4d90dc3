package facematch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
)

// HNSWIndex is an approximate nearest neighbor searcher over the enrolled catalog.
// The graph only preselects candidates; their exact distances are recomputed in
// float64 and filtered with the same strict threshold as Rank. The preselection
// widens until it reaches a neighbor outside the threshold or covers the catalog.
// A catalog embedding whose size differs from the rest fails the build, as it fails Rank.
type HNSWIndex struct {
	catalog    database.CatalogReader
	candidates int
	logger     *slog.Logger

	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	byID  map[string]database.Attendee
	dims  int
	stale bool
}

// NewHNSWIndex creates an index that builds itself from catalog on first search.
func NewHNSWIndex(catalog database.CatalogReader, candidates int, logger *slog.Logger) *HNSWIndex {
	if candidates <= 0 {
		candidates = constants.DefaultHNSWCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HNSWIndex{
		catalog:    catalog,
		candidates: candidates,
		logger:     logger,
		byID:       make(map[string]database.Attendee),
		stale:      true,
	}
}

// Rebuild loads the catalog and replaces the graph.
func (h *HNSWIndex) Rebuild(ctx context.Context) error {
	attendees, err := h.catalog.AllWithEmbedding(ctx)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.build(attendees)
}

// build replaces the graph. Caller must hold the write lock.
// On error the previous graph is kept and the index stays stale.
func (h *HNSWIndex) build(attendees []database.Attendee) error {
	g := hnsw.NewGraph[string]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance

	byID := make(map[string]database.Attendee, len(attendees))
	dims := 0
	for i := range attendees {
		a := attendees[i]
		if !a.HasEmbedding() {
			continue
		}
		if dims == 0 {
			dims = len(a.Embedding)
		}
		if len(a.Embedding) != dims {
			return fmt.Errorf("attendee %s: %w: %d vs %d", a.ID, ErrDimensionMismatch, len(a.Embedding), dims)
		}
		key := a.ID.String()
		g.Add(hnsw.MakeNode(key, toFloat32(a.Embedding)))
		byID[key] = a
	}

	h.graph = g
	h.byID = byID
	h.dims = dims
	h.stale = false
	h.logger.Debug("hnsw index built", "attendees", len(byID))
	return nil
}

// Invalidate marks the index for a rebuild on the next search.
func (h *HNSWIndex) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stale = true
}

// Len returns the number of indexed attendees.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Search returns candidates strictly closer than threshold, closest first.
func (h *HNSWIndex) Search(ctx context.Context, query []float64, threshold float64) ([]Candidate, error) {
	h.mu.RLock()
	stale := h.stale
	h.mu.RUnlock()
	if stale {
		if err := h.Rebuild(ctx); err != nil {
			return nil, err
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.byID) == 0 {
		return nil, nil
	}
	if len(query) != h.dims {
		return nil, fmt.Errorf("%w: query %d vs index %d", ErrDimensionMismatch, len(query), h.dims)
	}

	q := toFloat32(query)
	k := min(h.candidates, len(h.byID))
	for {
		neighbors := h.graph.Search(q, k)
		found := make([]database.Attendee, 0, len(neighbors))
		for _, n := range neighbors {
			if a, ok := h.byID[n.Key]; ok {
				found = append(found, a)
			}
		}

		candidates, err := Rank(query, found, threshold)
		if err != nil {
			return nil, err
		}
		if len(candidates) < len(found) || k >= len(h.byID) {
			return candidates, nil
		}
		k = min(k*2, len(h.byID))
	}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
