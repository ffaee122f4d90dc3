package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceRepository is the PostgreSQL attendance ledger.
// The attendances_attendee_day_key unique index arbitrates concurrent writers.
type AttendanceRepository struct {
	pool      *Pool
	attendees *AttendeeRepository
	now       func() time.Time
}

// NewAttendanceRepository creates a new PostgreSQL attendance ledger.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{
		pool:      pool,
		attendees: NewAttendeeRepository(pool),
		now:       time.Now,
	}
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
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, database.StorageError("create attendances", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()
	records := make([]database.Attendance, 0, len(attendeeIDs))
	for _, attendeeID := range attendeeIDs {
		rec, err := insertAttendance(ctx, tx, subjectID, attendeeID, now)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	// The unique index is not deferrable, so violations surface at INSERT with the attendee known.
	if err := tx.Commit(); err != nil {
		return nil, database.StorageError("commit attendances", err)
	}
	return records, nil
}

// insertAttendance checks the attendee's latest attendance and inserts a new one.
// The read is only a fast path; the unique index catches writers racing past it.
func insertAttendance(ctx context.Context, tx *sql.Tx, subjectID, attendeeID uuid.UUID, now time.Time) (*database.Attendance, error) {
	var last time.Time
	err := tx.QueryRowContext(ctx, `
		SELECT created_at FROM attendances
		WHERE attendee_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, attendeeID).Scan(&last)
	switch {
	case err == nil:
		if database.SameAttendanceDay(last, now) {
			return nil, &database.DuplicateAttendanceError{AttendeeID: attendeeID, SubjectID: subjectID}
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, database.StorageError("read latest attendance", err)
	}

	rec := &database.Attendance{
		ID:         uuid.New(),
		SubjectID:  subjectID,
		AttendeeID: attendeeID,
		CreatedAt:  now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendances (id, subject_id, attendee_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.SubjectID, rec.AttendeeID, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &database.DuplicateAttendanceError{AttendeeID: attendeeID, SubjectID: subjectID}
		}
		if kind, ok := foreignKeyTarget(err); ok {
			id := attendeeID
			if kind == "subject" {
				id = subjectID
			}
			return nil, database.NotFound(kind, id)
		}
		return nil, database.StorageError("insert attendance", err)
	}
	return rec, nil
}

// Get returns hydrated attendances matching the filter, oldest first.
func (r *AttendanceRepository) Get(ctx context.Context, filter database.AttendancesFilter) ([]database.Attendance, error) {
	var conditions []string
	var args []any
	if filter.SubjectID != nil {
		args = append(args, *filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.AttendeeID != nil {
		args = append(args, *filter.AttendeeID)
		conditions = append(conditions, fmt.Sprintf("attendee_id = $%d", len(args)))
	}

	query := `SELECT id, subject_id, attendee_id, created_at FROM attendances`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, database.StorageError("query attendances", err)
	}
	defer rows.Close()

	var records []database.Attendance
	for rows.Next() {
		var rec database.Attendance
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.AttendeeID, &rec.CreatedAt); err != nil {
			return nil, database.StorageError("scan attendance", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StorageError("iterate attendances", err)
	}

	if err := r.hydrate(ctx, records); err != nil {
		return nil, database.StorageError("hydrate attendances", err)
	}
	return records, nil
}

// GetByID returns one hydrated attendance.
func (r *AttendanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*database.Attendance, error) {
	var rec database.Attendance
	err := r.pool.QueryRow(ctx, `
		SELECT id, subject_id, attendee_id, created_at FROM attendances WHERE id = $1
	`, id).Scan(&rec.ID, &rec.SubjectID, &rec.AttendeeID, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.NotFound("attendance", id)
	}
	if err != nil {
		return nil, database.StorageError("get attendance", err)
	}

	records := []database.Attendance{rec}
	if err := r.hydrate(ctx, records); err != nil {
		return nil, database.StorageError("hydrate attendance", err)
	}
	return &records[0], nil
}

// DeleteByID removes an attendance.
func (r *AttendanceRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM attendances WHERE id = $1`, id)
	if err != nil {
		return database.StorageError("delete attendance", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return database.StorageError("delete attendance", err)
	}
	if n == 0 {
		return database.NotFound("attendance", id)
	}
	return nil
}

func (r *AttendanceRepository) hydrate(ctx context.Context, records []database.Attendance) error {
	if len(records) == 0 {
		return nil
	}
	attendeeIDs, subjectIDs := database.AttendanceRelations(records)

	attendees, err := r.attendees.attendeesByIDs(ctx, attendeeIDs)
	if err != nil {
		return err
	}
	subjects, err := subjectsByIDs(ctx, r.pool, subjectIDs)
	if err != nil {
		return err
	}
	database.Hydrate(records, attendees, subjects)
	return nil
}

// Verify interface compliance
var _ database.AttendanceLedger = (*AttendanceRepository)(nil)
