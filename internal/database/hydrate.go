package database

import "github.com/google/uuid"

// AttendanceRelations collects the ids a batch of attendances refers to, so adapters can
// load related rows with one query per table instead of one per attendance.
func AttendanceRelations(records []Attendance) (attendeeIDs, subjectIDs []uuid.UUID) {
	seenAttendees := make(map[uuid.UUID]struct{}, len(records))
	seenSubjects := make(map[uuid.UUID]struct{})
	for _, rec := range records {
		if _, ok := seenAttendees[rec.AttendeeID]; !ok {
			seenAttendees[rec.AttendeeID] = struct{}{}
			attendeeIDs = append(attendeeIDs, rec.AttendeeID)
		}
		if _, ok := seenSubjects[rec.SubjectID]; !ok {
			seenSubjects[rec.SubjectID] = struct{}{}
			subjectIDs = append(subjectIDs, rec.SubjectID)
		}
	}
	return attendeeIDs, subjectIDs
}

// Hydrate attaches attendees and subjects to each record in place.
// Missing relations are left nil.
func Hydrate(records []Attendance, attendees map[uuid.UUID]Attendee, subjects map[uuid.UUID]Subject) {
	for i := range records {
		if a, ok := attendees[records[i].AttendeeID]; ok {
			records[i].Attendee = &a
		}
		if s, ok := subjects[records[i].SubjectID]; ok {
			records[i].Subject = &s
		}
	}
}
