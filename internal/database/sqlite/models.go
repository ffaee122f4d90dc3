package sqlite

import (
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
)

// attendeeModel maps the attendees table. A nil Embedding is stored as NULL.
type attendeeModel struct {
	ID         uuid.UUID `gorm:"primaryKey;type:text"`
	Number     int64     `gorm:"uniqueIndex;not null"`
	Name       string    `gorm:"not null"`
	Email      string    `gorm:"uniqueIndex;not null"`
	Embedding  []float64 `gorm:"serializer:json"`
	EnrolledAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (attendeeModel) TableName() string { return "attendees" }

type instructorModel struct {
	ID        uuid.UUID `gorm:"primaryKey;type:text"`
	Name      string    `gorm:"not null"`
	Email     string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (instructorModel) TableName() string { return "instructors" }

type subjectModel struct {
	ID           uuid.UUID          `gorm:"primaryKey;type:text"`
	Name         string             `gorm:"not null"`
	InstructorID *uuid.UUID         `gorm:"type:text;index"`
	Instructor   *instructorModel   `gorm:"foreignKey:InstructorID;constraint:OnDelete:SET NULL"`
	Dates        []subjectDateModel `gorm:"foreignKey:SubjectID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (subjectModel) TableName() string { return "subjects" }

// subjectDateModel keeps times as "15:04:05" strings.
type subjectDateModel struct {
	ID        uuid.UUID `gorm:"primaryKey;type:text"`
	SubjectID uuid.UUID `gorm:"type:text;index;not null"`
	DayOfWeek int       `gorm:"not null"`
	StartTime string    `gorm:"not null"`
	EndTime   string    `gorm:"not null"`
}

func (subjectDateModel) TableName() string { return "subject_dates" }

// attendanceModel carries AttendDate, the UTC day of CreatedAt, so the
// one-per-day rule can be a plain unique index.
type attendanceModel struct {
	ID         uuid.UUID      `gorm:"primaryKey;type:text"`
	SubjectID  uuid.UUID      `gorm:"type:text;index;not null"`
	Subject    *subjectModel  `gorm:"foreignKey:SubjectID;constraint:OnDelete:CASCADE"`
	AttendeeID uuid.UUID      `gorm:"type:text;not null;uniqueIndex:idx_attendances_attendee_day,priority:1"`
	Attendee   *attendeeModel `gorm:"foreignKey:AttendeeID;constraint:OnDelete:CASCADE"`
	AttendDate string         `gorm:"not null;uniqueIndex:idx_attendances_attendee_day,priority:2"`
	CreatedAt  time.Time      `gorm:"index;not null"`
}

func (attendanceModel) TableName() string { return "attendances" }

func (m *attendeeModel) toDomain() database.Attendee {
	a := database.Attendee{
		ID:        m.ID,
		Number:    m.Number,
		Name:      m.Name,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Embedding) > 0 {
		a.Embedding = m.Embedding
	}
	if m.EnrolledAt != nil {
		t := *m.EnrolledAt
		a.EnrolledAt = &t
	}
	return a
}

func (m *subjectModel) toDomain() database.Subject {
	s := database.Subject{
		ID:        m.ID,
		Name:      m.Name,
		Dates:     make([]database.SubjectDate, 0, len(m.Dates)),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Instructor != nil {
		s.Instructor = &database.Instructor{
			ID:    m.Instructor.ID,
			Name:  m.Instructor.Name,
			Email: m.Instructor.Email,
		}
	}
	for _, d := range m.Dates {
		s.Dates = append(s.Dates, database.SubjectDate{
			ID:        d.ID,
			DayOfWeek: d.DayOfWeek,
			StartTime: d.StartTime,
			EndTime:   d.EndTime,
		})
	}
	return s
}

func (m *attendanceModel) toDomain() database.Attendance {
	return database.Attendance{
		ID:         m.ID,
		SubjectID:  m.SubjectID,
		AttendeeID: m.AttendeeID,
		CreatedAt:  m.CreatedAt,
	}
}
