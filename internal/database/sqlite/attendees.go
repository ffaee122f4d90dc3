package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
	"gorm.io/gorm"
)

// AttendeeRepository provides SQLite-backed attendee storage.
type AttendeeRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAttendeeRepository creates a new SQLite attendee repository.
func NewAttendeeRepository(db *DB) *AttendeeRepository {
	return &AttendeeRepository{db: db.gorm, now: time.Now}
}

// AllWithEmbedding returns every enrolled attendee ordered by number.
func (r *AttendeeRepository) AllWithEmbedding(ctx context.Context) ([]database.Attendee, error) {
	var models []attendeeModel
	err := r.db.WithContext(ctx).
		Where("embedding IS NOT NULL AND embedding <> ?", "[]").
		Order("number, id").
		Find(&models).Error
	if err != nil {
		return nil, database.StorageError("query enrolled attendees", err)
	}
	return toAttendees(models), nil
}

// Get retrieves an attendee by ID.
func (r *AttendeeRepository) Get(ctx context.Context, id uuid.UUID) (*database.Attendee, error) {
	var m attendeeModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.NotFound("attendee", id)
	}
	if err != nil {
		return nil, database.StorageError("get attendee", err)
	}
	a := m.toDomain()
	return &a, nil
}

// List returns all attendees ordered by number.
func (r *AttendeeRepository) List(ctx context.Context) ([]database.Attendee, error) {
	var models []attendeeModel
	if err := r.db.WithContext(ctx).Order("number, id").Find(&models).Error; err != nil {
		return nil, database.StorageError("list attendees", err)
	}
	return toAttendees(models), nil
}

// SetEmbedding overwrites the attendee's embedding and stamps the enrollment time.
func (r *AttendeeRepository) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float64) error {
	now := r.now().UTC()
	result := r.db.WithContext(ctx).
		Model(&attendeeModel{ID: id}).
		Select("Embedding", "EnrolledAt", "UpdatedAt").
		Updates(&attendeeModel{Embedding: embedding, EnrolledAt: &now, UpdatedAt: now})
	if result.Error != nil {
		return database.StorageError("set attendee embedding", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NotFound("attendee", id)
	}
	return nil
}

func toAttendees(models []attendeeModel) []database.Attendee {
	out := make([]database.Attendee, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out
}

// Verify interface compliance
var _ database.AttendeeWriter = (*AttendeeRepository)(nil)
