package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	svc := s.services

	systemHandler := handlers.NewSystemHandler(s.config, svc.Index, svc.Pipeline, svc.Machine.Clock(), svc.Version)
	recognitionHandler := handlers.NewRecognitionHandler(svc.Pipeline)
	attendanceHandler := handlers.NewAttendanceHandler(svc.Machine)
	employeesHandler := handlers.NewEmployeesHandler(svc.Directory)
	indexHandler := handlers.NewIndexHandler(svc.Index)
	backupHandler := handlers.NewBackupHandler(svc.Backups)
	sessionHandler := handlers.NewSessionHandler(svc.Directory)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/system", systemHandler.Get)

		// Capture
		r.Post("/frames", recognitionHandler.SubmitFrame)
		r.Post("/recognize", recognitionHandler.Recognize)
		r.Get("/recognition/last", recognitionHandler.Last)

		// Attendance
		r.Get("/attendance/status", attendanceHandler.Status)
		r.Get("/attendance/summary", attendanceHandler.Summary)
		r.Get("/attendance/logs", attendanceHandler.Logs)
		r.Get("/attendance/integrity", attendanceHandler.Integrity)

		// Directory
		r.Get("/employees", employeesHandler.List)
		r.Get("/employees/{code}", employeesHandler.Get)

		r.Get("/index", indexHandler.Get)
		r.Get("/backup/status", backupHandler.Status)

		// Everything that changes state on the terminal
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(s.config.Web.AdminToken))

			r.Post("/attendance", attendanceHandler.Record)

			r.Put("/employees/{code}", employeesHandler.Upsert)
			r.Put("/employees/{code}/photo", employeesHandler.UploadPhoto)

			r.Post("/index/rebuild", indexHandler.Rebuild)

			r.Post("/backup/run", backupHandler.Run)
			r.Post("/backup/extract/{label}", backupHandler.Extract)

			r.Get("/session", sessionHandler.Get)
			r.Put("/session", sessionHandler.Save)
			r.Delete("/session", sessionHandler.Clear)
		})
	})
}
