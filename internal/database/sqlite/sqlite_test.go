package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
	"gorm.io/gorm"
)

type fixture struct {
	db        *DB
	math      uuid.UUID
	physics   uuid.UUID
	attendees []uuid.UUID
}

func setupDB(t *testing.T) fixture {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "rollcall.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	instructor := instructorModel{ID: uuid.New(), Name: "Grace", Email: "grace@example.com"}
	if err := db.gorm.Create(&instructor).Error; err != nil {
		t.Fatal(err)
	}

	f := fixture{db: db, math: uuid.New(), physics: uuid.New()}
	subjects := []subjectModel{
		{
			ID:           f.math,
			Name:         "Math",
			InstructorID: &instructor.ID,
			Dates: []subjectDateModel{
				{ID: uuid.New(), DayOfWeek: 3, StartTime: "10:00:00", EndTime: "11:30:00"},
				{ID: uuid.New(), DayOfWeek: 1, StartTime: "08:00:00", EndTime: "09:30:00"},
			},
		},
		{ID: f.physics, Name: "Physics"},
	}
	if err := db.gorm.Create(&subjects).Error; err != nil {
		t.Fatal(err)
	}

	for i := range 3 {
		a := attendeeModel{
			ID:     uuid.New(),
			Number: int64(i + 1),
			Name:   fmt.Sprintf("Attendee %d", i+1),
			Email:  fmt.Sprintf("a%d@example.com", i+1),
		}
		if err := db.gorm.Create(&a).Error; err != nil {
			t.Fatal(err)
		}
		f.attendees = append(f.attendees, a.ID)
	}
	return f
}

func TestAttendeeRepository_Catalog(t *testing.T) {
	f := setupDB(t)
	repo := NewAttendeeRepository(f.db)
	ctx := context.Background()

	got, err := repo.AllWithEmbedding(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty catalog, got %d", len(got))
	}

	if err := repo.SetEmbedding(ctx, f.attendees[1], []float64{0.25, -0.5}); err != nil {
		t.Fatalf("SetEmbedding failed: %v", err)
	}

	got, err = repo.AllWithEmbedding(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != f.attendees[1] {
		t.Fatalf("expected only the enrolled attendee, got %v", got)
	}
	if len(got[0].Embedding) != 2 || got[0].Embedding[1] != -0.5 {
		t.Errorf("embedding not round-tripped: %v", got[0].Embedding)
	}
	if got[0].EnrolledAt == nil {
		t.Error("expected enrolledAt to be set")
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 attendees, got %d", len(all))
	}
}

func TestAttendeeRepository_NotFound(t *testing.T) {
	f := setupDB(t)
	repo := NewAttendeeRepository(f.db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound from Get, got %v", err)
	}
	if err := repo.SetEmbedding(ctx, uuid.New(), []float64{1}); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound from SetEmbedding, got %v", err)
	}
}

func TestAttendanceRepository_ConcurrentCreate(t *testing.T) {
	f := setupDB(t)
	ledger := NewAttendanceRepository(f.db)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		subject := f.math
		if i%2 == 1 {
			subject = f.physics
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Create(context.Background(), subject, f.attendees[0])
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, database.ErrDuplicateAttendance):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != workers-1 {
		t.Errorf("expected 1 success and %d duplicates, got %d and %d", workers-1, successes, duplicates)
	}
}

func TestAttendanceRepository_CrossDay(t *testing.T) {
	f := setupDB(t)
	ledger := NewAttendanceRepository(f.db)
	ctx := context.Background()

	day := time.Date(2024, 3, 11, 23, 30, 0, 0, time.UTC)
	ledger.now = func() time.Time { return day }
	if _, err := ledger.Create(ctx, f.math, f.attendees[0]); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	ledger.now = func() time.Time { return day.Add(time.Hour) }
	if _, err := ledger.Create(ctx, f.math, f.attendees[0]); err != nil {
		t.Fatalf("next-day create failed: %v", err)
	}

	_, err := ledger.Create(ctx, f.physics, f.attendees[0])
	var dup *database.DuplicateAttendanceError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateAttendanceError, got %v", err)
	}
	if dup.SubjectID != f.physics {
		t.Errorf("expected subject %s, got %s", f.physics, dup.SubjectID)
	}
}

func TestAttendanceRepository_UniqueIndexBacksTheCheck(t *testing.T) {
	f := setupDB(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	err := f.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := insertAttendance(tx, f.math, f.attendees[0], now); err != nil {
			return err
		}
		// Bypass the read check: the row must still be rejected by the index.
		return tx.Create(&attendanceModel{
			ID:         uuid.New(),
			SubjectID:  f.physics,
			AttendeeID: f.attendees[0],
			AttendDate: database.AttendanceDayKey(now),
			CreatedAt:  now.Add(time.Minute),
		}).Error
	})
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("expected ErrDuplicatedKey from the unique index, got %v", err)
	}
}

func TestAttendanceRepository_CreateManyAtomic(t *testing.T) {
	f := setupDB(t)
	ledger := NewAttendanceRepository(f.db)
	ctx := context.Background()

	if _, err := ledger.Create(ctx, f.physics, f.attendees[1]); err != nil {
		t.Fatal(err)
	}

	_, err := ledger.CreateMany(ctx, f.math, f.attendees)
	if !errors.Is(err, database.ErrDuplicateAttendance) {
		t.Fatalf("expected duplicate attendance, got %v", err)
	}

	all, err := ledger.Get(ctx, database.AttendancesFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected only the seeded attendance, got %d", len(all))
	}
}

func TestAttendanceRepository_UnknownReferences(t *testing.T) {
	f := setupDB(t)
	ledger := NewAttendanceRepository(f.db)
	ctx := context.Background()

	if _, err := ledger.Create(ctx, uuid.New(), f.attendees[0]); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown subject, got %v", err)
	}
	if _, err := ledger.Create(ctx, f.math, uuid.New()); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown attendee, got %v", err)
	}
}

func TestAttendanceRepository_GetHydrates(t *testing.T) {
	f := setupDB(t)
	ledger := NewAttendanceRepository(f.db)
	ctx := context.Background()

	if _, err := ledger.CreateMany(ctx, f.math, f.attendees[:2]); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		filter   database.AttendancesFilter
		expected int
	}{
		{name: "no filter", filter: database.AttendancesFilter{}, expected: 2},
		{name: "by subject", filter: database.AttendancesFilter{SubjectID: &f.math}, expected: 2},
		{name: "other subject", filter: database.AttendancesFilter{SubjectID: &f.physics}, expected: 0},
		{name: "by attendee", filter: database.AttendancesFilter{AttendeeID: &f.attendees[1]}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.Get(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.expected {
				t.Fatalf("expected %d attendances, got %d", tt.expected, len(got))
			}
			for _, rec := range got {
				if rec.Attendee == nil || rec.Attendee.ID != rec.AttendeeID {
					t.Errorf("attendee not hydrated: %+v", rec.Attendee)
				}
				if rec.Subject == nil || rec.Subject.Instructor == nil {
					t.Fatalf("subject not hydrated: %+v", rec.Subject)
				}
				if len(rec.Subject.Dates) != 2 || rec.Subject.Dates[0].DayOfWeek != 1 {
					t.Errorf("unexpected subject dates %+v", rec.Subject.Dates)
				}
			}
		})
	}
}

func TestAttendanceRepository_DeleteByID(t *testing.T) {
	f := setupDB(t)
	ledger := NewAttendanceRepository(f.db)
	ctx := context.Background()

	rec, err := ledger.Create(ctx, f.math, f.attendees[2])
	if err != nil {
		t.Fatal(err)
	}
	got, err := ledger.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Subject == nil || got.Subject.Name != "Math" {
		t.Errorf("expected hydrated subject, got %+v", got.Subject)
	}

	if err := ledger.DeleteByID(ctx, rec.ID); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	if err := ledger.DeleteByID(ctx, rec.ID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
