package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
)

// subjectsByIDs loads subjects with their instructor and weekly dates,
// one query for subjects plus instructors and one for dates.
func subjectsByIDs(ctx context.Context, pool *Pool, ids []uuid.UUID) (map[uuid.UUID]database.Subject, error) {
	out := make(map[uuid.UUID]database.Subject, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := pool.Query(ctx, `
		SELECT s.id, s.name, s.created_at, s.updated_at, i.id, i.name, i.email
		FROM subjects s
		LEFT JOIN instructors i ON i.id = s.instructor_id
		WHERE s.id = ANY($1::uuid[])
	`, uuidArray(ids))
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s database.Subject
		var instructorID uuid.NullUUID
		var instructorName, instructorEmail sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt, &instructorID, &instructorName, &instructorEmail); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		if instructorID.Valid {
			s.Instructor = &database.Instructor{
				ID:    instructorID.UUID,
				Name:  instructorName.String,
				Email: instructorEmail.String,
			}
		}
		s.Dates = []database.SubjectDate{}
		out[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}

	dateRows, err := pool.Query(ctx, `
		SELECT id, subject_id, day_of_week, to_char(start_time, 'HH24:MI:SS'), to_char(end_time, 'HH24:MI:SS')
		FROM subject_dates
		WHERE subject_id = ANY($1::uuid[])
		ORDER BY day_of_week, start_time
	`, uuidArray(ids))
	if err != nil {
		return nil, fmt.Errorf("query subject dates: %w", err)
	}
	defer dateRows.Close()

	for dateRows.Next() {
		var d database.SubjectDate
		var subjectID uuid.UUID
		if err := dateRows.Scan(&d.ID, &subjectID, &d.DayOfWeek, &d.StartTime, &d.EndTime); err != nil {
			return nil, fmt.Errorf("scan subject date: %w", err)
		}
		if s, ok := out[subjectID]; ok {
			s.Dates = append(s.Dates, d)
			out[subjectID] = s
		}
	}
	if err := dateRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subject dates: %w", err)
	}

	return out, nil
}
