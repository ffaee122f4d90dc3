//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 20,
		MaxIdleConns: 5,
	}

	pool, _, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

type fixture struct {
	instructor uuid.UUID
	math       uuid.UUID
	physics    uuid.UUID
	attendees  []uuid.UUID
}

func seedFixture(t *testing.T, pool *Pool) fixture {
	t.Helper()
	f := fixture{instructor: uuid.New(), math: uuid.New(), physics: uuid.New()}

	mustExec(t, pool, `DELETE FROM attendances`)
	mustExec(t, pool, `DELETE FROM attendees`)
	mustExec(t, pool, `DELETE FROM subjects`)
	mustExec(t, pool, `DELETE FROM instructors`)

	mustExec(t, pool, `INSERT INTO instructors (id, name, email) VALUES ($1, 'Grace', 'grace@example.com')`, f.instructor)
	mustExec(t, pool, `INSERT INTO subjects (id, name, instructor_id) VALUES ($1, 'Math', $2), ($3, 'Physics', NULL)`, f.math, f.instructor, f.physics)
	mustExec(t, pool, `INSERT INTO subject_dates (subject_id, day_of_week, start_time, end_time) VALUES ($1, 1, '08:00', '09:30'), ($1, 3, '10:00', '11:30')`, f.math)

	for i := range 3 {
		id := uuid.New()
		mustExec(t, pool, `INSERT INTO attendees (id, number, name, email) VALUES ($1, $2, $3, $4)`,
			id, i+1, fmt.Sprintf("Attendee %d", i+1), fmt.Sprintf("a%d@example.com", i+1))
		f.attendees = append(f.attendees, id)
	}

	return f
}

func mustExec(t *testing.T, pool *Pool, query string, args ...any) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	applied, err := pool.Migrate(ctx)
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no pending migrations, got %v", applied)
	}

	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) == 0 || versions[0] != "001_init.sql" {
		t.Errorf("unexpected migrations %v", versions)
	}
}

func TestAttendeeRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	f := seedFixture(t, pool)
	repo := NewAttendeeRepository(pool)

	t.Run("CatalogExcludesNotEnrolled", func(t *testing.T) {
		got, err := repo.AllWithEmbedding(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty catalog, got %d", len(got))
		}
	})

	t.Run("SetEmbedding", func(t *testing.T) {
		if err := repo.SetEmbedding(ctx, f.attendees[0], []float64{0.1, 0.2, 0.3}); err != nil {
			t.Fatalf("SetEmbedding failed: %v", err)
		}
		got, err := repo.AllWithEmbedding(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != f.attendees[0] {
			t.Fatalf("expected only the enrolled attendee, got %v", got)
		}
		if len(got[0].Embedding) != 3 || got[0].Embedding[2] != 0.3 {
			t.Errorf("embedding not round-tripped: %v", got[0].Embedding)
		}
		if got[0].EnrolledAt == nil {
			t.Error("expected enrolledAt to be set")
		}
	})

	t.Run("SetEmbeddingUnknown", func(t *testing.T) {
		err := repo.SetEmbedding(ctx, uuid.New(), []float64{1})
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.New())
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		got, err := repo.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 || got[0].Number != 1 {
			t.Errorf("unexpected list %v", got)
		}
	})
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	ledger := NewAttendanceRepository(pool)

	t.Run("ConcurrentCreate", func(t *testing.T) {
		f := seedFixture(t, pool)
		const workers = 10

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
				_, err := ledger.Create(ctx, subject, f.attendees[0])
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
				var dup *database.DuplicateAttendanceError
				if !errors.As(err, &dup) || dup.AttendeeID != f.attendees[0] {
					t.Errorf("duplicate error lost the attendee id: %v", err)
				}
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if successes != 1 || duplicates != workers-1 {
			t.Errorf("expected 1 success and %d duplicates, got %d and %d", workers-1, successes, duplicates)
		}
	})

	t.Run("CrossDay", func(t *testing.T) {
		f := seedFixture(t, pool)
		day := time.Date(2024, 3, 11, 23, 30, 0, 0, time.UTC)

		ledger.now = func() time.Time { return day }
		defer func() { ledger.now = time.Now }()
		if _, err := ledger.Create(ctx, f.math, f.attendees[1]); err != nil {
			t.Fatalf("first create failed: %v", err)
		}

		ledger.now = func() time.Time { return day.Add(time.Hour) }
		if _, err := ledger.Create(ctx, f.math, f.attendees[1]); err != nil {
			t.Fatalf("next-day create failed: %v", err)
		}

		_, err := ledger.Create(ctx, f.physics, f.attendees[1])
		var dup *database.DuplicateAttendanceError
		if !errors.As(err, &dup) {
			t.Fatalf("expected DuplicateAttendanceError, got %v", err)
		}
		if dup.AttendeeID != f.attendees[1] {
			t.Errorf("expected attendee %s, got %s", f.attendees[1], dup.AttendeeID)
		}
	})

	t.Run("CreateManyAtomic", func(t *testing.T) {
		f := seedFixture(t, pool)
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
	})

	t.Run("UnknownReferences", func(t *testing.T) {
		f := seedFixture(t, pool)
		if _, err := ledger.Create(ctx, uuid.New(), f.attendees[0]); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown subject, got %v", err)
		}
		if _, err := ledger.Create(ctx, f.math, uuid.New()); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound for unknown attendee, got %v", err)
		}
	})

	t.Run("GetHydrates", func(t *testing.T) {
		f := seedFixture(t, pool)
		if _, err := ledger.CreateMany(ctx, f.math, f.attendees[:2]); err != nil {
			t.Fatal(err)
		}

		got, err := ledger.Get(ctx, database.AttendancesFilter{AttendeeID: &f.attendees[1]})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 attendance, got %d", len(got))
		}
		rec := got[0]
		if rec.Attendee == nil || rec.Attendee.ID != f.attendees[1] {
			t.Errorf("attendee not hydrated: %+v", rec.Attendee)
		}
		if rec.Subject == nil || rec.Subject.Instructor == nil || rec.Subject.Instructor.Name != "Grace" {
			t.Fatalf("subject not hydrated: %+v", rec.Subject)
		}
		if len(rec.Subject.Dates) != 2 || rec.Subject.Dates[0].StartTime != "08:00:00" {
			t.Errorf("unexpected subject dates %+v", rec.Subject.Dates)
		}

		bySubject, err := ledger.Get(ctx, database.AttendancesFilter{SubjectID: &f.physics})
		if err != nil {
			t.Fatal(err)
		}
		if len(bySubject) != 0 {
			t.Errorf("expected no physics attendances, got %d", len(bySubject))
		}
	})

	t.Run("DeleteByID", func(t *testing.T) {
		f := seedFixture(t, pool)
		rec, err := ledger.Create(ctx, f.math, f.attendees[2])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ledger.GetByID(ctx, rec.ID); err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if err := ledger.DeleteByID(ctx, rec.ID); err != nil {
			t.Fatalf("DeleteByID failed: %v", err)
		}
		if err := ledger.DeleteByID(ctx, rec.ID); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestVectorSearcher(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewAttendeeRepository(pool)

	enroll := func(t *testing.T, f fixture, embeddings ...[]float64) {
		t.Helper()
		for i, e := range embeddings {
			if err := repo.SetEmbedding(ctx, f.attendees[i], e); err != nil {
				t.Fatal(err)
			}
		}
	}

	t.Run("Ranking", func(t *testing.T) {
		f := seedFixture(t, pool)
		enroll(t, f, []float64{0.9, 0}, []float64{0.3, 0}, []float64{0.5, 0})

		got, err := NewVectorSearcher(pool, 10).Search(ctx, []float64{0, 0}, 0.6)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(got))
		}
		if got[0].Attendee.ID != f.attendees[1] || got[1].Attendee.ID != f.attendees[2] {
			t.Errorf("unexpected order: %v", got)
		}
	})

	t.Run("MoreMatchesThanLimit", func(t *testing.T) {
		f := seedFixture(t, pool)
		enroll(t, f, []float64{0.3, 0}, []float64{0.1, 0}, []float64{0.2, 0})

		got, err := NewVectorSearcher(pool, 1).Search(ctx, []float64{0, 0}, 0.6)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected all 3 matches, got %d", len(got))
		}
		expected := []uuid.UUID{f.attendees[1], f.attendees[2], f.attendees[0]}
		for i, id := range expected {
			if got[i].Attendee.ID != id {
				t.Errorf("position %d: expected %s, got %s", i, id, got[i].Attendee.ID)
			}
		}
	})

	t.Run("TiesKeepCatalogOrder", func(t *testing.T) {
		f := seedFixture(t, pool)
		enroll(t, f, []float64{0.2, 0}, []float64{0, 0.2}, []float64{-0.2, 0})

		got, err := NewVectorSearcher(pool, 1).Search(ctx, []float64{0, 0}, 0.6)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 candidates, got %d", len(got))
		}
		for i := range got {
			if got[i].Attendee.ID != f.attendees[i] {
				t.Errorf("position %d: expected attendee #%d, got #%d", i, i+1, got[i].Attendee.Number)
			}
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		f := seedFixture(t, pool)
		enroll(t, f, []float64{0.1, 0}, []float64{0.1})

		_, err := NewVectorSearcher(pool, 10).Search(ctx, []float64{0, 0}, 0.6)
		if !errors.Is(err, facematch.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})
}
