package database

import (
	"time"

	"github.com/google/uuid"
)

// Attendee is an enrolled person. Embedding is nil until an enrollment image was processed.
type Attendee struct {
	ID         uuid.UUID  `json:"id"`
	Number     int64      `json:"number"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Embedding  []float64  `json:"-"`
	EnrolledAt *time.Time `json:"enrolledAt,omitempty"`
	CreatedAt  time.Time  `json:"createAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// HasEmbedding reports whether the attendee can take part in embedding matches.
func (a *Attendee) HasEmbedding() bool {
	return len(a.Embedding) > 0
}

// Instructor is the person assigned to teach a subject.
type Instructor struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// SubjectDate is one weekly meeting slot of a subject.
// DayOfWeek follows time.Weekday (0 = Sunday), times are "15:04:05".
type SubjectDate struct {
	ID        uuid.UUID `json:"id"`
	DayOfWeek int       `json:"dayOfWeek"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
}

// Subject is a scheduled course attendance is taken for.
type Subject struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Instructor *Instructor   `json:"instructor"`
	Dates      []SubjectDate `json:"dates"`
	CreatedAt  time.Time     `json:"createAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Attendance is a single attendance event. Attendee and Subject are populated on reads.
type Attendance struct {
	ID         uuid.UUID `json:"id"`
	SubjectID  uuid.UUID `json:"subjectId"`
	AttendeeID uuid.UUID `json:"attendeeId"`
	CreatedAt  time.Time `json:"createAt"`
	Attendee   *Attendee `json:"attendee,omitempty"`
	Subject    *Subject  `json:"subject,omitempty"`
}

// AttendancesFilter narrows ledger reads. Nil fields do not filter.
type AttendancesFilter struct {
	SubjectID  *uuid.UUID
	AttendeeID *uuid.UUID
}
