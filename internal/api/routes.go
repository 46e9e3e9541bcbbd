package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	if !s.config.Log.Production {
		s.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	origins := "*"
	if len(s.config.Security.AllowOrigins) > 0 {
		origins = strings.Join(s.config.Security.AllowOrigins, ",")
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")

	api.Post("/auth/login", s.handleLogin)

	protected := api.Use(s.authMiddleware())

	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)
	protected.Get("/medications/:id", s.handleGetMedication)
	protected.Patch("/medications/:id", s.handleUpdateMedication)
	protected.Delete("/medications/:id", s.handleDeleteMedication)
	protected.Post("/medications/:id/taken", s.handleMarkTaken)
	protected.Delete("/medications/:id/taken/:key", s.handleUnmarkTaken)
	protected.Post("/medications/:id/reminders/sync", s.handleSyncReminders)

	protected.Get("/schedule", s.handleAgenda)
	protected.Get("/schedule/upcoming", s.handleUpcoming)
	protected.Get("/schedule/weekly", s.handleWeekly)
	protected.Get("/schedule/calendar.ics", s.handleCalendar)

	protected.Get("/adherence", s.handleAdherence)
	protected.Get("/reminders", s.handleListReminders)
}

func (s *Server) Start() error {
	return s.app.Listen(s.config.ListenAddr())
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
