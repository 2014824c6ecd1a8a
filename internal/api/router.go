package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/student-records-be/internal/api/handlers"
	"github.com/isdelr/student-records-be/internal/auth"
	"github.com/isdelr/student-records-be/internal/services"
	"github.com/isdelr/student-records-be/internal/websocket"
)

// Deps holds the collaborators the router wires into handlers.
type Deps struct {
	DB          handlers.Pinger
	Hub         *websocket.Hub
	Auth        services.AuthServiceProvider
	Students    services.StudentServiceProvider
	Jobs        handlers.JobSubmitter
	CORSOrigins []string
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(d.DB)
	authHandler := handlers.NewAuthHandler(d.Auth)
	studentHandler := handlers.NewStudentHandler(d.Students, d.Jobs)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.CORSOrigins)

	r.Get("/", healthHandler.Root)
	r.Get("/healthz", healthHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", wsHandler.Serve)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.With(auth.Middleware(d.Auth)).Get("/me", authHandler.Me)
		})

		r.Route("/students", func(r chi.Router) {
			r.Use(auth.Middleware(d.Auth))

			r.Get("/", studentHandler.List)
			r.Post("/", studentHandler.Create)
			r.Get("/courses", studentHandler.Courses)
			r.Get("/stats/average", studentHandler.AverageGrade)
			r.Get("/low-grades", studentHandler.LowGrades)
			r.Post("/import", studentHandler.Import)
			r.Post("/batch-delete", studentHandler.BatchDelete)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", studentHandler.Get)
				r.Put("/", studentHandler.Update)
				r.Delete("/", studentHandler.Delete)
			})
		})
	})

	return r
}
