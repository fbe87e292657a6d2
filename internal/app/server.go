package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/virtual-teacher/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/virtual-teacher/internal/api/middlewares"
	"github.com/markdave123-py/virtual-teacher/internal/config"
	"github.com/markdave123-py/virtual-teacher/internal/core/ingestion_engine"
	"github.com/markdave123-py/virtual-teacher/internal/logger"
	"github.com/markdave123-py/virtual-teacher/internal/services"
)

// Services are the collaborators the HTTP layer is built on. Ingestor may be
// nil when object storage is not configured.
type Services struct {
	Users         *services.UserService
	Documents     *services.DocumentService
	Conversations *services.ConversationService
	Quizzes       *services.QuizService
	Lessons       handlers.LessonGenerator
	Ingestor      ingestion_engine.Ingestor
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	log        *logger.Logger
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, log *logger.Logger, svc Services) *Server {
	return &Server{
		log: log.With("component", "Server"),
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, log, svc),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter mounts every route. The lesson socket sits outside the request
// timeout since a generation can run for minutes.
func NewRouter(cfg *config.Config, log *logger.Logger, svc Services) http.Handler {
	authHandler := handlers.NewAuthHandler(log, svc.Users, cfg.JWTSecret, cfg.TokenTTL)
	docHandler := handlers.NewDocumentHandler(log, svc.Documents, svc.Ingestor)
	convHandler := handlers.NewConversationHandler(log, svc.Conversations)
	quizHandler := handlers.NewQuizHandler(log, svc.Quizzes)
	lessonHandler := handlers.NewLessonHandler(log, svc.Lessons, cfg.JWTSecret, cfg.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/ws/lesson", lessonHandler.Serve)

	timeout := middleware.Timeout(60 * time.Second)
	r.With(timeout).Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(timeout).Post("/upload_pdf/", docHandler.UploadPDF)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(rest chi.Router) {
			rest.Use(timeout)

			// public endpoints
			rest.Post("/auth/signup", authHandler.Signup)
			rest.Post("/auth/login", authHandler.Login)

			// protected endpoints
			rest.Group(func(protected chi.Router) {
				protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
				protected.Get("/auth/profile", authHandler.Profile)

				protected.Get("/documents", docHandler.GetDocuments)

				protected.Get("/conversations", convHandler.List)
				protected.Get("/conversations/{id}/messages", convHandler.Messages)
				protected.Patch("/conversations/{id}", convHandler.Rename)
				protected.Delete("/conversations/{id}", convHandler.Delete)

				protected.Post("/quizzes", quizHandler.Record)
				protected.Get("/quizzes", quizHandler.List)
			})
		})

		// Uploads stream to object storage under their own deadline.
		api.With(appMiddleware.JWTMiddleware(cfg.JWTSecret)).Post("/documents/upload", docHandler.UploadDocument)
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
