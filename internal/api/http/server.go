// Package httpapi exposes the assessment engine over REST.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/eduforge/assess/internal/auth/middleware"
	"github.com/eduforge/assess/internal/quiz"
	"github.com/eduforge/assess/internal/rbac"
)

type Server struct {
	svc  *quiz.Service
	auth *auth.AuthService
}

func NewServer(svc *quiz.Service, a *auth.AuthService) *Server {
	return &Server{svc: svc, auth: a}
}

func (s *Server) Router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/auth/login", auth.LoginHandler(s.auth))

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTMiddleware(s.auth))

		r.Route("/quizzes", func(r chi.Router) {
			r.With(rbac.Require("quiz:create")).Post("/", s.createQuiz)
			r.With(rbac.Require("quiz:view")).Get("/{quizID}", s.getQuiz)
			r.With(rbac.Require("quiz:edit")).Put("/{quizID}", s.updateQuiz)
			r.With(rbac.Require("quiz:delete")).Delete("/{quizID}", s.deleteQuiz)

			r.With(rbac.Require("quiz:view")).Get("/{quizID}/summary", s.quizSummary)

			r.With(rbac.Require("quiz:edit")).Post("/{quizID}/rules", s.addRule)
			r.With(rbac.Require("quiz:view")).Get("/{quizID}/rules", s.listRules)
			r.With(rbac.Require("quiz:edit")).Patch("/{quizID}/rules/{ruleID}", s.updateRulePoints)
			r.With(rbac.Require("quiz:edit")).Delete("/{quizID}/rules/{ruleID}", s.deleteRule)
			r.With(rbac.Require("quiz:edit")).Delete("/{quizID}/rules", s.deleteAllRules)

			r.With(rbac.Require("quiz:view")).Get("/{quizID}/scale", s.getScale)
			r.With(rbac.Require("quiz:edit")).Put("/{quizID}/scale", s.replaceScale)
			r.With(rbac.Require("quiz:edit")).Delete("/{quizID}/scale", s.deleteScale)

			r.With(rbac.Require("grant:create")).Post("/{quizID}/grants", s.addGrant)
			r.With(rbac.Require("grant:view")).Get("/{quizID}/grants", s.listGrants)
			r.With(rbac.Require("grant:revoke")).Delete("/{quizID}/grants/{grantID}", s.revokeGrant)
			r.With(rbac.Require("grant:edit")).Post("/{quizID}/grants/{grantID}/users", s.addGrantUser)
			r.With(rbac.Require("grant:edit")).Delete("/{quizID}/grants/{grantID}/users/{userID}", s.removeGrantUser)

			r.With(rbac.Require("attempt:start")).Post("/{quizID}/attempts", s.startAttempt)
			r.With(rbac.Require("attempt:force")).Post("/{quizID}/attempts/bulk", s.startAttemptsForActors)
			r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/{quizID}/attempts", s.listAttempts)
			r.With(rbac.Require("attempt:revoke")).Delete("/{quizID}/attempts", s.revokeAttempts)
			r.With(rbac.Require("gradebook:commit")).Post("/{quizID}/gradebook", s.commitGradebook)
		})

		r.Route("/attempts/{attemptID}", func(r chi.Router) {
			r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/", s.getAttempt)
			r.With(rbac.Require("attempt:start")).Post("/activate", s.activateAttempt)
			r.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/questions", s.attemptQuestions)
			r.With(rbac.Require("attempt:answer")).Put("/questions/{questionID}", s.saveResponse)
			r.With(rbac.Require("attempt:finish")).Post("/finish", s.finishAttempt)
		})
	})

	return r
}
