package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/pgvector/pgvector-go"
)

// VectorSearcher finds match candidates with a pgvector nearest neighbor query.
// The database only preselects the closest rows; exact distances and the threshold
// are then applied by facematch.Rank on the float64 embeddings. The preselection
// doubles until it returns a row outside the threshold or runs out of rows.
type VectorSearcher struct {
	pool  *Pool
	limit int
}

// NewVectorSearcher creates a searcher that first preselects up to limit rows.
func NewVectorSearcher(pool *Pool, limit int) *VectorSearcher {
	if limit <= 0 {
		limit = constants.DefaultVectorSearchLimit
	}
	return &VectorSearcher{pool: pool, limit: limit}
}

// Search returns attendees strictly closer than threshold, closest first.
// Equal distances keep catalog order (number, id).
func (s *VectorSearcher) Search(ctx context.Context, query []float64, threshold float64) ([]facematch.Candidate, error) {
	if len(query) == 0 {
		return nil, facematch.ErrDimensionMismatch
	}
	if err := s.checkDimensions(ctx, len(query)); err != nil {
		return nil, err
	}

	vec := pgvector.NewVector(toFloat32(query))
	for limit := s.limit; ; limit *= 2 {
		attendees, err := s.nearest(ctx, vec, limit)
		if err != nil {
			return nil, err
		}

		candidates, err := facematch.Rank(query, attendees, threshold)
		if err != nil {
			return nil, fmt.Errorf("rank vector search results: %w", err)
		}
		if len(candidates) < len(attendees) || len(attendees) < limit {
			return candidates, nil
		}
	}
}

func (s *VectorSearcher) nearest(ctx context.Context, vec pgvector.Vector, limit int) ([]database.Attendee, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attendeeColumns+`
		FROM attendees
		WHERE embedding_vec IS NOT NULL
		ORDER BY embedding_vec <-> $1, number, id
		LIMIT $2
	`, vec, limit)
	if err != nil {
		return nil, database.StorageError("vector search", err)
	}
	defer rows.Close()

	attendees, err := scanAttendees(rows)
	if err != nil {
		return nil, database.StorageError("vector search", err)
	}
	return attendees, nil
}

// checkDimensions fails when any enrolled embedding has a different size than the query,
// the same way a catalog scan does.
func (s *VectorSearcher) checkDimensions(ctx context.Context, dims int) error {
	var other int
	err := s.pool.QueryRow(ctx, `
		SELECT vector_dims(embedding_vec)
		FROM attendees
		WHERE embedding_vec IS NOT NULL AND vector_dims(embedding_vec) <> $1
		LIMIT 1
	`, dims).Scan(&other)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return database.StorageError("check embedding dimensions", err)
	}
	return fmt.Errorf("%w: query %d vs catalog %d", facematch.ErrDimensionMismatch, dims, other)
}
