package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/database/sqlite"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/identify"
	"github.com/kozaktomas/rollcall/internal/metrics"
	"github.com/kozaktomas/rollcall/internal/recognition"
)

// storage bundles the repositories of the configured backend.
type storage struct {
	attendees database.AttendeeWriter
	ledger    database.AttendanceLedger
	pinger    interface{ Ping(context.Context) error }
	pool      *postgres.Pool // nil unless the backend is postgres
	close     func() error
}

// openStorage opens the configured backend. PostgreSQL migrations are applied on open.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.Database.Backend {
	case config.BackendPostgres:
		pool, applied, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", "files", applied)
		}
		return &storage{
			attendees: postgres.NewAttendeeRepository(pool),
			ledger:    postgres.NewAttendanceRepository(pool),
			pinger:    pool,
			pool:      pool,
			close:     pool.Close,
		}, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite storage", "path", cfg.Database.SQLitePath)
		return &storage{
			attendees: sqlite.NewAttendeeRepository(db),
			ledger:    sqlite.NewAttendanceRepository(db),
			pinger:    db,
			close:     db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q (want %q or %q)",
		cfg.Database.Backend, config.BackendPostgres, config.BackendSQLite)
}

// newSearcher picks the embedding searcher for the configured match backend.
// Everything that caches catalog state is returned as an invalidator.
func newSearcher(cfg *config.Config, st *storage, logger *slog.Logger) (identify.Searcher, []identify.Invalidator, error) {
	catalog := database.NewCachedCatalog(st.attendees, cfg.Matching.CatalogCacheTTL)
	invalidators := []identify.Invalidator{catalog}

	switch cfg.Matching.Backend {
	case config.MatchBackendScan, "":
		return identify.NewScanSearcher(catalog), invalidators, nil
	case config.MatchBackendHNSW:
		index := facematch.NewHNSWIndex(catalog, cfg.Matching.HNSWCandidates, logger)
		return index, append(invalidators, index), nil
	case config.MatchBackendPgvector:
		if st.pool == nil {
			return nil, nil, fmt.Errorf("match backend %q requires the postgres storage backend", cfg.Matching.Backend)
		}
		return postgres.NewVectorSearcher(st.pool, constants.DefaultVectorSearchLimit), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown match backend %q", cfg.Matching.Backend)
}

// newRecognitionClient creates the face recognition client, reporting call latencies to m.
func newRecognitionClient(cfg *config.Config, m *metrics.Metrics) *recognition.Client {
	client := recognition.NewClient(cfg.Recognition.URL,
		recognition.WithTimeout(cfg.Recognition.Timeout),
		recognition.WithRateLimit(cfg.Recognition.RateLimit),
	)
	if m != nil {
		client.SetObserver(m.ObserveRecognition)
	}
	return client
}

// newPipeline wires the identification pipeline on top of st.
func newPipeline(cfg *config.Config, st *storage, m *metrics.Metrics, logger *slog.Logger) (*identify.Pipeline, identify.Searcher, error) {
	mode, err := identify.ParseMode(cfg.Recognition.Mode)
	if err != nil {
		return nil, nil, err
	}
	searcher, invalidators, err := newSearcher(cfg, st, logger)
	if err != nil {
		return nil, nil, err
	}
	client := newRecognitionClient(cfg, m)

	pipeline := identify.NewPipeline(identify.Deps{
		Embedder:     client,
		Classifier:   client,
		Searcher:     searcher,
		Attendees:    st.attendees,
		Ledger:       st.ledger,
		Mode:         identify.NewModeSwitch(mode),
		Threshold:    cfg.Matching.Threshold,
		Invalidators: invalidators,
		Metrics:      m,
		Logger:       logger,
	})
	return pipeline, searcher, nil
}
