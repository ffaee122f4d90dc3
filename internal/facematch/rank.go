// Package facematch ranks enrolled attendees against a query face embedding.
package facematch

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
)

// DefaultThreshold is the operating point used when no threshold is configured.
const DefaultThreshold = constants.DefaultMatchThreshold

// Candidate is an attendee within the match threshold of a query embedding.
type Candidate struct {
	Attendee database.Attendee `json:"attendee"`
	Distance float64           `json:"distance"`
}

// Rank scans the catalog and returns every attendee whose embedding is strictly closer
// than threshold, closest first. Equal distances keep catalog order.
// Attendees without an embedding are skipped.
func Rank(query []float64, catalog []database.Attendee, threshold float64) ([]Candidate, error) {
	var candidates []Candidate
	for i := range catalog {
		if !catalog[i].HasEmbedding() {
			continue
		}
		distance, err := EuclideanDistance(query, catalog[i].Embedding)
		if err != nil {
			return nil, fmt.Errorf("attendee %s: %w", catalog[i].ID, err)
		}
		if distance < threshold {
			candidates = append(candidates, Candidate{Attendee: catalog[i], Distance: distance})
		}
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	return candidates, nil
}

// Attendees strips the distances, keeping the ranking order.
func Attendees(candidates []Candidate) []database.Attendee {
	out := make([]database.Attendee, len(candidates))
	for i := range candidates {
		out[i] = candidates[i].Attendee
	}
	return out
}
