package database

import (
	"context"

	"github.com/google/uuid"
)

// CatalogReader supplies the enrolled population for embedding matches.
type CatalogReader interface {
	// AllWithEmbedding returns every attendee that has an embedding.
	// Attendees without one are left out.
	AllWithEmbedding(ctx context.Context) ([]Attendee, error)
}

// AttendeeReader provides read-only access to attendees
type AttendeeReader interface {
	CatalogReader

	// Get retrieves an attendee by ID, returns an ErrNotFound error if missing
	Get(ctx context.Context, id uuid.UUID) (*Attendee, error)
	// List returns all attendees, enrolled or not
	List(ctx context.Context) ([]Attendee, error)
}

// AttendeeWriter provides write access to attendee enrollment data
type AttendeeWriter interface {
	AttendeeReader

	// SetEmbedding overwrites the attendee's embedding and stamps the enrollment time
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float64) error
}

// AttendanceLedger is the transactional attendance store.
// It allows at most one attendance per attendee per UTC calendar day, whatever the subject.
type AttendanceLedger interface {
	// Create records an attendance. Returns a *DuplicateAttendanceError when the
	// attendee already has an attendance today.
	Create(ctx context.Context, subjectID, attendeeID uuid.UUID) (*Attendance, error)
	// CreateMany records attendances for all attendees in one transaction.
	// Any failure aborts the batch and nothing is committed.
	CreateMany(ctx context.Context, subjectID uuid.UUID, attendeeIDs []uuid.UUID) ([]Attendance, error)
	// Get returns attendances matching the filter, hydrated with attendee and subject
	Get(ctx context.Context, filter AttendancesFilter) ([]Attendance, error)
	// GetByID returns one hydrated attendance
	GetByID(ctx context.Context, id uuid.UUID) (*Attendance, error)
	// DeleteByID removes an attendance
	DeleteByID(ctx context.Context, id uuid.UUID) error
}
