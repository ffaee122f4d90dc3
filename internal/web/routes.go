package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	identifyHandler := handlers.NewIdentifyHandler(s.deps.Pipeline, s.logger)
	attendancesHandler := handlers.NewAttendancesHandler(s.deps.Pipeline, s.logger)
	attendeesHandler := handlers.NewAttendeesHandler(s.deps.Pipeline, s.logger)
	configHandler := handlers.NewConfigHandler(s.deps.Pipeline, s.logger)
	healthHandler := handlers.NewHealthHandler(s.deps.Storage, s.logger)

	s.router.Get("/api/v1/health", healthHandler.Check)
	s.router.Handle("/metrics", s.deps.Metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Identification
		r.Post("/identify", identifyHandler.Identify)

		// Attendances
		r.Post("/subjects/{subjectId}/attendances", attendancesHandler.CreateBatch)
		r.Post("/subjects/{subjectId}/attendances/image", attendancesHandler.CreateFromImage)
		r.Put("/subjects/{subjectId}/attendees/{attendeeId}/attendance", attendancesHandler.Put)
		r.Get("/attendances", attendancesHandler.List)
		r.Get("/attendances/{id}", attendancesHandler.Get)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.config.Web.AdminToken))

			r.Delete("/attendances/{id}", attendancesHandler.Delete)
			r.Post("/attendees/{id}/image", attendeesHandler.Enroll)
			r.Get("/config/face-recognition", configHandler.GetFaceRecognition)
			r.Put("/config/face-recognition", configHandler.SetFaceRecognition)
			r.Post("/config/classifier", configHandler.UploadClassifier)
		})
	})
}
