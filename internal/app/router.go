package app

import (
	"database/sql"
	"net/http"
	"time"

	"examserve/internal/app/observability"
	"examserve/internal/auth"
	"examserve/internal/evaluation"
	"examserve/internal/exam"
	"examserve/internal/question"
	"examserve/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authSvc := auth.NewService(db, auth.ServiceConfig{
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	})
	authHandler := auth.NewHandler(authSvc)

	examSvc := exam.NewService(db)
	examHandler := exam.NewHandler(examSvc)

	questionSvc := question.NewService(db)
	questionHandler := question.NewHandler(questionSvc)

	evalSvc := evaluation.NewService(db)
	evalHandler := evaluation.NewHandler(evalSvc)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(authLimiter))
			public.Post("/auth/register", authHandler.Register)
			public.Post("/auth/login", authHandler.Login)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/exams", questionHandler.ListExams)
			secure.Get("/exams/{id}", questionHandler.GetExam)

			secure.Post("/attempts", examHandler.Start)
			secure.Get("/attempts/{id}", examHandler.GetAttempt)
			secure.Get("/attempts/{id}/questions", examHandler.ListQuestions)
			secure.Get("/attempts/{id}/answers", examHandler.ListAnswers)
			secure.Put("/attempts/{id}/answers/{questionID}", examHandler.SaveAnswer)
			secure.Post("/attempts/{id}/answers", examHandler.BulkSave)
			secure.Post("/attempts/{id}/submit", examHandler.Submit)
			secure.Patch("/attempts/{id}/status", examHandler.UpdateStatus)
			secure.Post("/attempts/{id}/events", examHandler.LogEvent)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles("admin"))
				admin.Post("/exams", questionHandler.CreateExam)
				admin.Put("/exams/{id}", questionHandler.UpdateExam)
				admin.Patch("/exams/{id}/status", questionHandler.SetExamStatus)
				admin.Delete("/exams/{id}", questionHandler.DeleteExam)
				admin.Post("/exams/{id}/access-code", questionHandler.RegenerateAccessCode)
				admin.Post("/exams/{id}/questions", questionHandler.UpsertQuestion)
				admin.Put("/exams/{id}/questions/{questionID}", questionHandler.UpsertQuestion)
				admin.Delete("/exams/{id}/questions/{questionID}", questionHandler.DeleteQuestion)
			})

			secure.Group(func(staff chi.Router) {
				staff.Use(authHandler.RequireRoles("admin", "coordinator"))
				staff.Get("/exams/{id}/questions", questionHandler.ListQuestions)
				staff.Get("/attempts/{id}/events", examHandler.ListEvents)

				staff.Get("/evaluation/pending", evalHandler.ListPending)
				staff.Get("/evaluation/attempts/{id}", evalHandler.GetAttemptAnswers)
				staff.Post("/evaluation/attempts/{id}", evalHandler.SubmitEvaluation)
				staff.Post("/exams/{id}/publish", evalHandler.PublishResults)

				staff.Get("/exams/{id}/stats", reportHandler.Stats)
				staff.Get("/exams/{id}/results.xlsx", reportHandler.ExportResults)
			})
		})
	})

	return r
}
