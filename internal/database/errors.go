package database

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a referenced attendee, subject or attendance does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateAttendance matches every *DuplicateAttendanceError via errors.Is.
	ErrDuplicateAttendance = errors.New("attendance already taken")

	// ErrStorageUnavailable wraps storage failures that are not one of the above.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// DuplicateAttendanceError reports that the attendee already attended today.
type DuplicateAttendanceError struct {
	AttendeeID uuid.UUID
	SubjectID  uuid.UUID
}

func (e *DuplicateAttendanceError) Error() string {
	return fmt.Sprintf("attendance already taken today for attendee %s (subject %s)", e.AttendeeID, e.SubjectID)
}

// Is makes errors.Is(err, ErrDuplicateAttendance) hold.
func (e *DuplicateAttendanceError) Is(target error) bool {
	return target == ErrDuplicateAttendance
}

// NotFound builds an ErrNotFound error naming the missing record.
func NotFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// StorageError wraps err as ErrStorageUnavailable, keeping the cause for logging.
// Errors that already carry a ledger meaning are returned unchanged.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateAttendance) || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
