// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
)

// Store holds the shared in-memory state behind the mock repositories.
// A single mutex serializes writes, which gives the ledger the same
// one-attendance-per-day guarantee as the unique index in the real stores.
type Store struct {
	mu          sync.Mutex
	attendees   map[uuid.UUID]database.Attendee
	order       []uuid.UUID
	subjects    map[uuid.UUID]database.Subject
	attendances []database.Attendance
	now         func() time.Time
}

// NewStore creates an empty store using the wall clock.
func NewStore() *Store {
	return &Store{
		attendees: make(map[uuid.UUID]database.Attendee),
		subjects:  make(map[uuid.UUID]database.Subject),
		now:       time.Now,
	}
}

// SetClock replaces the clock used to stamp new attendances.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddAttendee inserts or replaces an attendee. A nil ID is replaced with a new one.
func (s *Store) AddAttendee(a database.Attendee) database.Attendee {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, ok := s.attendees[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.attendees[a.ID] = a
	return a
}

// AddSubject inserts or replaces a subject. A nil ID is replaced with a new one.
func (s *Store) AddSubject(sub database.Subject) database.Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subjects[sub.ID] = sub
	return sub
}

// AddAttendance inserts a raw attendance without any checks, e.g. to seed past days.
func (s *Store) AddAttendance(rec database.Attendance) database.Attendance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	s.attendances = append(s.attendances, rec)
	return rec
}

// AttendanceCount returns the number of stored attendances.
func (s *Store) AttendanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attendances)
}

// MockAttendeeRepository is a mock implementation of database.AttendeeWriter
type MockAttendeeRepository struct {
	store *Store

	mu            sync.Mutex
	catalogCalls  int
	embeddingsSet map[uuid.UUID][]float64

	// Error injection
	AllWithEmbeddingError error
	GetError              error
	ListError             error
	SetEmbeddingError     error
}

// NewMockAttendeeRepository creates a mock attendee repository over store
func NewMockAttendeeRepository(store *Store) *MockAttendeeRepository {
	return &MockAttendeeRepository{store: store, embeddingsSet: make(map[uuid.UUID][]float64)}
}

// AllWithEmbedding returns enrolled attendees in insertion order
func (m *MockAttendeeRepository) AllWithEmbedding(ctx context.Context) ([]database.Attendee, error) {
	m.mu.Lock()
	m.catalogCalls++
	m.mu.Unlock()
	if m.AllWithEmbeddingError != nil {
		return nil, m.AllWithEmbeddingError
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []database.Attendee
	for _, id := range m.store.order {
		a := m.store.attendees[id]
		if a.HasEmbedding() {
			out = append(out, a)
		}
	}
	return out, nil
}

// CatalogCalls returns how many times AllWithEmbedding was called
func (m *MockAttendeeRepository) CatalogCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalogCalls
}

// Get retrieves an attendee by ID
func (m *MockAttendeeRepository) Get(ctx context.Context, id uuid.UUID) (*database.Attendee, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	a, ok := m.store.attendees[id]
	if !ok {
		return nil, database.NotFound("attendee", id)
	}
	return &a, nil
}

// List returns all attendees in insertion order
func (m *MockAttendeeRepository) List(ctx context.Context) ([]database.Attendee, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	out := make([]database.Attendee, 0, len(m.store.order))
	for _, id := range m.store.order {
		out = append(out, m.store.attendees[id])
	}
	return out, nil
}

// SetEmbedding overwrites an attendee's embedding
func (m *MockAttendeeRepository) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float64) error {
	if m.SetEmbeddingError != nil {
		return m.SetEmbeddingError
	}
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	a, ok := m.store.attendees[id]
	if !ok {
		return database.NotFound("attendee", id)
	}
	now := m.store.now().UTC()
	a.Embedding = slices.Clone(embedding)
	a.EnrolledAt = &now
	a.UpdatedAt = now
	m.store.attendees[id] = a

	m.mu.Lock()
	m.embeddingsSet[id] = a.Embedding
	m.mu.Unlock()
	return nil
}

// EmbeddingSet returns the last embedding written for id, if any
func (m *MockAttendeeRepository) EmbeddingSet(id uuid.UUID) ([]float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.embeddingsSet[id]
	return e, ok
}

// MockAttendanceLedger is a mock implementation of database.AttendanceLedger
type MockAttendanceLedger struct {
	store *Store

	// Error injection
	CreateError error
	GetError    error
}

// NewMockAttendanceLedger creates a mock ledger over store
func NewMockAttendanceLedger(store *Store) *MockAttendanceLedger {
	return &MockAttendanceLedger{store: store}
}

// Create records an attendance unless the attendee already attended today
func (m *MockAttendanceLedger) Create(ctx context.Context, subjectID, attendeeID uuid.UUID) (*database.Attendance, error) {
	records, err := m.CreateMany(ctx, subjectID, []uuid.UUID{attendeeID})
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// CreateMany records attendances for all attendees or none of them
func (m *MockAttendanceLedger) CreateMany(ctx context.Context, subjectID uuid.UUID, attendeeIDs []uuid.UUID) ([]database.Attendance, error) {
	if m.CreateError != nil {
		return nil, m.CreateError
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjects[subjectID]; !ok {
		return nil, database.NotFound("subject", subjectID)
	}

	now := s.now().UTC()
	seen := make(map[uuid.UUID]struct{}, len(attendeeIDs))
	records := make([]database.Attendance, 0, len(attendeeIDs))
	for _, attendeeID := range attendeeIDs {
		if _, ok := s.attendees[attendeeID]; !ok {
			return nil, database.NotFound("attendee", attendeeID)
		}
		if _, dup := seen[attendeeID]; dup || s.attendedOn(attendeeID, now) {
			return nil, &database.DuplicateAttendanceError{AttendeeID: attendeeID, SubjectID: subjectID}
		}
		seen[attendeeID] = struct{}{}
		records = append(records, database.Attendance{
			ID:         uuid.New(),
			SubjectID:  subjectID,
			AttendeeID: attendeeID,
			CreatedAt:  now,
		})
	}

	s.attendances = append(s.attendances, records...)
	return records, nil
}

// attendedOn reports whether the attendee has an attendance on t's day. Caller holds the lock.
func (s *Store) attendedOn(attendeeID uuid.UUID, t time.Time) bool {
	for _, rec := range s.attendances {
		if rec.AttendeeID == attendeeID && database.SameAttendanceDay(rec.CreatedAt, t) {
			return true
		}
	}
	return false
}

// Get returns hydrated attendances matching the filter, oldest first
func (m *MockAttendanceLedger) Get(ctx context.Context, filter database.AttendancesFilter) ([]database.Attendance, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []database.Attendance
	for _, rec := range s.attendances {
		if filter.SubjectID != nil && rec.SubjectID != *filter.SubjectID {
			continue
		}
		if filter.AttendeeID != nil && rec.AttendeeID != *filter.AttendeeID {
			continue
		}
		out = append(out, rec)
	}
	slices.SortStableFunc(out, func(a, b database.Attendance) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	database.Hydrate(out, s.attendees, s.subjects)
	return out, nil
}

// GetByID returns one hydrated attendance
func (m *MockAttendanceLedger) GetByID(ctx context.Context, id uuid.UUID) (*database.Attendance, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.attendances {
		if rec.ID == id {
			records := []database.Attendance{rec}
			database.Hydrate(records, s.attendees, s.subjects)
			return &records[0], nil
		}
	}
	return nil, database.NotFound("attendance", id)
}

// DeleteByID removes an attendance
func (m *MockAttendanceLedger) DeleteByID(ctx context.Context, id uuid.UUID) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.attendances {
		if rec.ID == id {
			s.attendances = slices.Delete(s.attendances, i, i+1)
			return nil
		}
	}
	return database.NotFound("attendance", id)
}

// Verify interface compliance
var (
	_ database.AttendeeWriter   = (*MockAttendeeRepository)(nil)
	_ database.AttendanceLedger = (*MockAttendanceLedger)(nil)
)
