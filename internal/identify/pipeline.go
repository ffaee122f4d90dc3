// Package identify resolves who is in a photo and records attendance for them.
package identify

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/metrics"
)

// EmbeddingClient computes face embeddings.
type EmbeddingClient interface {
	Embed(ctx context.Context, image []byte) ([]float64, error)
}

// ClassifierClient resolves a face directly to an attendee id.
type ClassifierClient interface {
	Classify(ctx context.Context, image []byte) (uuid.UUID, error)
	UploadClassifier(ctx context.Context, model []byte) (string, error)
}

// Deps are the collaborators of a Pipeline. Searcher defaults to a ScanSearcher over
// Attendees; Threshold defaults to facematch.DefaultThreshold.
type Deps struct {
	Embedder     EmbeddingClient
	Classifier   ClassifierClient
	Searcher     Searcher
	Attendees    database.AttendeeWriter
	Ledger       database.AttendanceLedger
	Mode         *ModeSwitch
	Threshold    float64
	Invalidators []Invalidator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Pipeline orchestrates identification and attendance recording.
type Pipeline struct {
	embedder     EmbeddingClient
	classifier   ClassifierClient
	searcher     Searcher
	attendees    database.AttendeeWriter
	ledger       database.AttendanceLedger
	mode         *ModeSwitch
	threshold    float64
	invalidators []Invalidator
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewPipeline creates a pipeline from deps.
func NewPipeline(deps Deps) *Pipeline {
	p := &Pipeline{
		embedder:     deps.Embedder,
		classifier:   deps.Classifier,
		searcher:     deps.Searcher,
		attendees:    deps.Attendees,
		ledger:       deps.Ledger,
		mode:         deps.Mode,
		threshold:    deps.Threshold,
		invalidators: deps.Invalidators,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
	if p.searcher == nil {
		p.searcher = NewScanSearcher(deps.Attendees)
	}
	if p.mode == nil {
		p.mode = NewModeSwitch(ModeClassify)
	}
	if p.threshold <= 0 {
		p.threshold = facematch.DefaultThreshold
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Mode returns the active recognition mode.
func (p *Pipeline) Mode() Mode {
	return p.mode.Get()
}

// SetMode switches the recognition mode for all following requests.
func (p *Pipeline) SetMode(m Mode) {
	p.mode.Set(m)
	p.logger.Info("recognition mode changed", "mode", m)
}

// Threshold returns the distance cutoff used in embed mode.
func (p *Pipeline) Threshold() float64 {
	return p.threshold
}

// Identify returns the attendees the image may show, best match first.
// An empty result means nobody was recognized and is not an error.
func (p *Pipeline) Identify(ctx context.Context, image []byte) ([]database.Attendee, error) {
	candidates, err := p.IdentifyCandidates(ctx, image)
	if err != nil {
		return nil, err
	}
	return facematch.Attendees(candidates), nil
}

// IdentifyCandidates is Identify with match distances, for confirmation UIs.
// In classify mode the single match is reported with distance 0.
func (p *Pipeline) IdentifyCandidates(ctx context.Context, image []byte) ([]facematch.Candidate, error) {
	mode := p.mode.Get()

	var candidates []facematch.Candidate
	var err error
	switch mode {
	case ModeEmbed:
		candidates, err = p.searchEmbedding(ctx, image)
	default:
		candidates, err = p.classify(ctx, image)
	}

	p.recordIdentification(mode, len(candidates), err)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []facematch.Candidate{}
	}
	return candidates, nil
}

// IdentifyAmong is IdentifyCandidates restricted to the given attendees, e.g. the roster
// of one class. Every id must exist; repeated ids count once. Ties keep catalog order.
func (p *Pipeline) IdentifyAmong(ctx context.Context, image []byte, attendeeIDs []uuid.UUID) ([]facematch.Candidate, error) {
	if len(attendeeIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	population, err := p.loadPopulation(ctx, attendeeIDs)
	if err != nil {
		return nil, err
	}

	mode := p.mode.Get()

	var candidates []facematch.Candidate
	switch mode {
	case ModeEmbed:
		candidates, err = p.rankAmong(ctx, image, population)
	default:
		candidates, err = p.classifyAmong(ctx, image, population)
	}

	p.recordIdentification(mode, len(candidates), err)
	if err != nil {
		return nil, err
	}
	if candidates == nil {
		candidates = []facematch.Candidate{}
	}
	return candidates, nil
}

func (p *Pipeline) loadPopulation(ctx context.Context, ids []uuid.UUID) ([]database.Attendee, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	population := make([]database.Attendee, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, err := p.attendees.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		population = append(population, *a)
	}

	slices.SortFunc(population, func(a, b database.Attendee) int {
		return cmp.Or(cmp.Compare(a.Number, b.Number), strings.Compare(a.ID.String(), b.ID.String()))
	})
	return population, nil
}

func (p *Pipeline) searchEmbedding(ctx context.Context, image []byte) ([]facematch.Candidate, error) {
	embedding, err := p.embedder.Embed(ctx, image)
	if err != nil {
		return nil, unavailable(err)
	}
	candidates, err := p.searcher.Search(ctx, embedding, p.threshold)
	if err != nil {
		return nil, fmt.Errorf("matching embedding: %w", err)
	}
	return candidates, nil
}

func (p *Pipeline) classify(ctx context.Context, image []byte) ([]facematch.Candidate, error) {
	id, err := p.classifier.Classify(ctx, image)
	if err != nil {
		return nil, unavailable(err)
	}

	attendee, err := p.attendees.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		p.logger.Warn("classifier returned unknown attendee", "attendee_id", id)
		return []facematch.Candidate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading classified attendee: %w", err)
	}
	return []facematch.Candidate{{Attendee: *attendee}}, nil
}

func (p *Pipeline) rankAmong(ctx context.Context, image []byte, population []database.Attendee) ([]facematch.Candidate, error) {
	embedding, err := p.embedder.Embed(ctx, image)
	if err != nil {
		return nil, unavailable(err)
	}
	candidates, err := facematch.Rank(embedding, population, p.threshold)
	if err != nil {
		return nil, fmt.Errorf("matching embedding: %w", err)
	}
	return candidates, nil
}

func (p *Pipeline) classifyAmong(ctx context.Context, image []byte, population []database.Attendee) ([]facematch.Candidate, error) {
	id, err := p.classifier.Classify(ctx, image)
	if err != nil {
		return nil, unavailable(err)
	}
	candidates := []facematch.Candidate{}
	for _, a := range population {
		if a.ID == id {
			candidates = append(candidates, facematch.Candidate{Attendee: a})
		}
	}
	return candidates, nil
}

func (p *Pipeline) recordIdentification(mode Mode, matches int, err error) {
	switch {
	case errors.Is(err, ErrRecognitionUnavailable):
		p.metrics.RecordIdentification(string(mode), metrics.OutcomeUnavailable)
		p.logger.Warn("identification failed", "mode", mode, "error", err)
	case err != nil:
		p.metrics.RecordIdentification(string(mode), metrics.OutcomeError)
		p.logger.Error("identification failed", "mode", mode, "error", err)
	case matches == 0:
		p.metrics.RecordIdentification(string(mode), metrics.OutcomeNoMatch)
		p.logger.Debug("nobody recognized", "mode", mode)
	default:
		p.metrics.RecordIdentification(string(mode), metrics.OutcomeMatched)
		p.logger.Debug("identified", "mode", mode, "matches", matches)
	}
}

// RecordAttendance records that attendeeID attended subjectID now.
// It fails with a *database.DuplicateAttendanceError when the attendee already attended today.
func (p *Pipeline) RecordAttendance(ctx context.Context, subjectID, attendeeID uuid.UUID) (*database.Attendance, error) {
	rec, err := p.ledger.Create(ctx, subjectID, attendeeID)
	p.recordAttendance(subjectID, 1, err)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordAttendances records attendance for every attendee or, on any failure, for none.
func (p *Pipeline) RecordAttendances(ctx context.Context, subjectID uuid.UUID, attendeeIDs []uuid.UUID) ([]database.Attendance, error) {
	if len(attendeeIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	records, err := p.ledger.CreateMany(ctx, subjectID, attendeeIDs)
	p.recordAttendance(subjectID, len(attendeeIDs), err)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RecordAttendanceFromImage identifies the best match in image and records their attendance.
// Returns ErrNoMatch when nobody was recognized.
func (p *Pipeline) RecordAttendanceFromImage(ctx context.Context, subjectID uuid.UUID, image []byte) (*database.Attendance, error) {
	matches, err := p.Identify(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoMatch
	}

	best := matches[0]
	rec, err := p.RecordAttendance(ctx, subjectID, best.ID)
	if err != nil {
		return nil, err
	}
	rec.Attendee = &best
	return rec, nil
}

func (p *Pipeline) recordAttendance(subjectID uuid.UUID, n int, err error) {
	var dup *database.DuplicateAttendanceError
	switch {
	case err == nil:
		p.metrics.RecordAttendance(metrics.OutcomeCreated, n)
		p.logger.Info("attendance recorded", "subject_id", subjectID, "attendees", n)
	case errors.As(err, &dup):
		p.metrics.RecordAttendance(metrics.OutcomeDuplicate, 1)
		p.logger.Info("attendance already taken", "subject_id", subjectID, "attendee_id", dup.AttendeeID)
	case errors.Is(err, database.ErrNotFound):
		p.metrics.RecordAttendance(metrics.OutcomeNotFound, 1)
		p.logger.Info("attendance rejected", "subject_id", subjectID, "error", err)
	default:
		p.metrics.RecordAttendance(metrics.OutcomeError, n)
		p.logger.Error("recording attendance failed", "subject_id", subjectID, "error", err)
	}
}

// GetAttendances returns hydrated attendances matching filter.
func (p *Pipeline) GetAttendances(ctx context.Context, filter database.AttendancesFilter) ([]database.Attendance, error) {
	return p.ledger.Get(ctx, filter)
}

// GetAttendance returns one hydrated attendance.
func (p *Pipeline) GetAttendance(ctx context.Context, id uuid.UUID) (*database.Attendance, error) {
	return p.ledger.GetByID(ctx, id)
}

// DeleteAttendance removes an attendance.
func (p *Pipeline) DeleteAttendance(ctx context.Context, id uuid.UUID) error {
	if err := p.ledger.DeleteByID(ctx, id); err != nil {
		return err
	}
	p.logger.Info("attendance deleted", "attendance_id", id)
	return nil
}

// Enroll computes the embedding of image and stores it as the attendee's reference face,
// replacing any earlier one.
func (p *Pipeline) Enroll(ctx context.Context, attendeeID uuid.UUID, image []byte) (*database.Attendee, error) {
	if _, err := p.attendees.Get(ctx, attendeeID); err != nil {
		return nil, err
	}

	embedding, err := p.embedder.Embed(ctx, image)
	if err != nil {
		return nil, unavailable(err)
	}
	if err := p.attendees.SetEmbedding(ctx, attendeeID, embedding); err != nil {
		return nil, fmt.Errorf("storing embedding: %w", err)
	}
	for _, inv := range p.invalidators {
		inv.Invalidate()
	}

	p.logger.Info("attendee enrolled", "attendee_id", attendeeID, "dims", len(embedding))
	return p.attendees.Get(ctx, attendeeID)
}

// UploadClassifier replaces the recognition service's classifier model.
func (p *Pipeline) UploadClassifier(ctx context.Context, model []byte) (string, error) {
	status, err := p.classifier.UploadClassifier(ctx, model)
	if err != nil {
		return "", unavailable(err)
	}
	p.logger.Info("classifier uploaded", "bytes", len(model), "status", status)
	return status, nil
}
