package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const attendeeColumns = `id, number, name, email, embedding, enrolled_at, created_at, updated_at`

// AttendeeRepository provides PostgreSQL-backed attendee storage.
type AttendeeRepository struct {
	pool *Pool
	now  func() time.Time
}

// NewAttendeeRepository creates a new PostgreSQL attendee repository.
func NewAttendeeRepository(pool *Pool) *AttendeeRepository {
	return &AttendeeRepository{pool: pool, now: time.Now}
}

// AllWithEmbedding returns every enrolled attendee ordered by number.
func (r *AttendeeRepository) AllWithEmbedding(ctx context.Context) ([]database.Attendee, error) {
	query := `SELECT ` + attendeeColumns + `
		FROM attendees
		WHERE embedding IS NOT NULL AND cardinality(embedding) > 0
		ORDER BY number, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, database.StorageError("query enrolled attendees", err)
	}
	defer rows.Close()

	attendees, err := scanAttendees(rows)
	if err != nil {
		return nil, database.StorageError("scan enrolled attendees", err)
	}
	return attendees, nil
}

// Get retrieves an attendee by ID.
func (r *AttendeeRepository) Get(ctx context.Context, id uuid.UUID) (*database.Attendee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+attendeeColumns+` FROM attendees WHERE id = $1`, id)

	a, err := scanAttendee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.NotFound("attendee", id)
	}
	if err != nil {
		return nil, database.StorageError("get attendee", err)
	}
	return a, nil
}

// List returns all attendees ordered by number.
func (r *AttendeeRepository) List(ctx context.Context) ([]database.Attendee, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+attendeeColumns+` FROM attendees ORDER BY number, id`)
	if err != nil {
		return nil, database.StorageError("list attendees", err)
	}
	defer rows.Close()

	attendees, err := scanAttendees(rows)
	if err != nil {
		return nil, database.StorageError("scan attendees", err)
	}
	return attendees, nil
}

// SetEmbedding overwrites the attendee's embedding, keeping the pgvector mirror in sync.
func (r *AttendeeRepository) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float64) error {
	now := r.now().UTC()
	var vec any
	if len(embedding) > 0 {
		vec = pgvector.NewVector(toFloat32(embedding))
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE attendees
		SET embedding = $2, embedding_vec = $3, enrolled_at = $4, updated_at = $4
		WHERE id = $1
	`, id, pq.Array(embedding), vec, now)
	if err != nil {
		return database.StorageError("set attendee embedding", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return database.StorageError("set attendee embedding", err)
	}
	if n == 0 {
		return database.NotFound("attendee", id)
	}
	return nil
}

// attendeesByIDs loads attendees keyed by id with a single query.
func (r *AttendeeRepository) attendeesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]database.Attendee, error) {
	out := make(map[uuid.UUID]database.Attendee, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+attendeeColumns+` FROM attendees WHERE id = ANY($1::uuid[])`, uuidArray(ids))
	if err != nil {
		return nil, fmt.Errorf("query attendees: %w", err)
	}
	defer rows.Close()

	attendees, err := scanAttendees(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range attendees {
		out[a.ID] = a
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendee(row rowScanner) (*database.Attendee, error) {
	var a database.Attendee
	var embedding pq.Float64Array
	var enrolledAt sql.NullTime

	if err := row.Scan(&a.ID, &a.Number, &a.Name, &a.Email, &embedding, &enrolledAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(embedding) > 0 {
		a.Embedding = []float64(embedding)
	}
	if enrolledAt.Valid {
		t := enrolledAt.Time
		a.EnrolledAt = &t
	}
	return &a, nil
}

func scanAttendees(rows *sql.Rows) ([]database.Attendee, error) {
	var attendees []database.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		attendees = append(attendees, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendees: %w", err)
	}
	return attendees, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// uuidArray converts ids for use with = ANY($n::uuid[]).
func uuidArray(ids []uuid.UUID) any {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return pq.Array(s)
}

// Verify interface compliance
var _ database.AttendeeWriter = (*AttendeeRepository)(nil)
