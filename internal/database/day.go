package database

import "time"

// Attendance days are UTC calendar days. The storage uniqueness indexes use the same rule.

// AttendanceDay returns midnight UTC of the day t falls on.
func AttendanceDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AttendanceDayKey formats the attendance day as YYYY-MM-DD.
func AttendanceDayKey(t time.Time) string {
	return AttendanceDay(t).Format(time.DateOnly)
}

// SameAttendanceDay reports whether a and b fall on the same UTC calendar day.
func SameAttendanceDay(a, b time.Time) bool {
	return AttendanceDay(a).Equal(AttendanceDay(b))
}
