package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
	"gorm.io/gorm"
)

// AttendanceRepository is the SQLite attendance ledger.
type AttendanceRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAttendanceRepository creates a new SQLite attendance ledger.
func NewAttendanceRepository(db *DB) *AttendanceRepository {
	return &AttendanceRepository{db: db.gorm, now: time.Now}
}

// Create records an attendance unless the attendee already attended today.
func (r *AttendanceRepository) Create(ctx context.Context, subjectID, attendeeID uuid.UUID) (*database.Attendance, error) {
	records, err := r.CreateMany(ctx, subjectID, []uuid.UUID{attendeeID})
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// CreateMany records attendances for all attendees in one transaction.
func (r *AttendanceRepository) CreateMany(ctx context.Context, subjectID uuid.UUID, attendeeIDs []uuid.UUID) ([]database.Attendance, error) {
	now := r.now().UTC()
	records := make([]database.Attendance, 0, len(attendeeIDs))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &subjectModel{}, "subject", subjectID); err != nil {
			return err
		}
		for _, attendeeID := range attendeeIDs {
			rec, err := insertAttendance(tx, subjectID, attendeeID, now)
			if err != nil {
				return err
			}
			records = append(records, rec.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, database.StorageError("create attendances", err)
	}
	return records, nil
}

func insertAttendance(tx *gorm.DB, subjectID, attendeeID uuid.UUID, now time.Time) (*attendanceModel, error) {
	if err := requireRow(tx, &attendeeModel{}, "attendee", attendeeID); err != nil {
		return nil, err
	}

	var latest []attendanceModel
	err := tx.Where("attendee_id = ?", attendeeID).Order("created_at DESC").Limit(1).Find(&latest).Error
	if err != nil {
		return nil, err
	}
	if len(latest) > 0 && database.SameAttendanceDay(latest[0].CreatedAt, now) {
		return nil, &database.DuplicateAttendanceError{AttendeeID: attendeeID, SubjectID: subjectID}
	}

	rec := &attendanceModel{
		ID:         uuid.New(),
		SubjectID:  subjectID,
		AttendeeID: attendeeID,
		AttendDate: database.AttendanceDayKey(now),
		CreatedAt:  now,
	}
	if err := tx.Omit("Subject", "Attendee").Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &database.DuplicateAttendanceError{AttendeeID: attendeeID, SubjectID: subjectID}
		}
		return nil, err
	}
	return rec, nil
}

func requireRow(tx *gorm.DB, model any, kind string, id uuid.UUID) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return database.NotFound(kind, id)
	}
	return nil
}

// Get returns hydrated attendances matching the filter, oldest first.
func (r *AttendanceRepository) Get(ctx context.Context, filter database.AttendancesFilter) ([]database.Attendance, error) {
	q := r.db.WithContext(ctx).Model(&attendanceModel{})
	if filter.SubjectID != nil {
		q = q.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.AttendeeID != nil {
		q = q.Where("attendee_id = ?", *filter.AttendeeID)
	}

	var models []attendanceModel
	if err := q.Order("created_at, id").Find(&models).Error; err != nil {
		return nil, database.StorageError("query attendances", err)
	}

	records := make([]database.Attendance, 0, len(models))
	for i := range models {
		records = append(records, models[i].toDomain())
	}
	if err := r.hydrate(ctx, records); err != nil {
		return nil, database.StorageError("hydrate attendances", err)
	}
	return records, nil
}

// GetByID returns one hydrated attendance.
func (r *AttendanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*database.Attendance, error) {
	var m attendanceModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.NotFound("attendance", id)
	}
	if err != nil {
		return nil, database.StorageError("get attendance", err)
	}

	records := []database.Attendance{m.toDomain()}
	if err := r.hydrate(ctx, records); err != nil {
		return nil, database.StorageError("hydrate attendance", err)
	}
	return &records[0], nil
}

// DeleteByID removes an attendance.
func (r *AttendanceRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&attendanceModel{})
	if result.Error != nil {
		return database.StorageError("delete attendance", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NotFound("attendance", id)
	}
	return nil
}

// hydrate loads related attendees and subjects, one query per table.
func (r *AttendanceRepository) hydrate(ctx context.Context, records []database.Attendance) error {
	if len(records) == 0 {
		return nil
	}
	attendeeIDs, subjectIDs := database.AttendanceRelations(records)
	db := r.db.WithContext(ctx)

	var attendeeModels []attendeeModel
	if err := db.Where("id IN ?", attendeeIDs).Find(&attendeeModels).Error; err != nil {
		return err
	}
	attendees := make(map[uuid.UUID]database.Attendee, len(attendeeModels))
	for i := range attendeeModels {
		attendees[attendeeModels[i].ID] = attendeeModels[i].toDomain()
	}

	var subjectModels []subjectModel
	err := db.
		Preload("Instructor").
		Preload("Dates", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("day_of_week, start_time")
		}).
		Where("id IN ?", subjectIDs).
		Find(&subjectModels).Error
	if err != nil {
		return err
	}
	subjects := make(map[uuid.UUID]database.Subject, len(subjectModels))
	for i := range subjectModels {
		subjects[subjectModels[i].ID] = subjectModels[i].toDomain()
	}

	database.Hydrate(records, attendees, subjects)
	return nil
}

// Verify interface compliance
var _ database.AttendanceLedger = (*AttendanceRepository)(nil)
