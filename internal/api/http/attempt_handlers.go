package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/eduforge/assess/internal/auth/middleware"
	"github.com/eduforge/assess/internal/quiz"
)

func (s *Server) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password     string `json:"password,omitempty"`
		DelayedStart bool   `json:"delayed_start,omitempty"`
	}
	// Body is optional for unprotected quizzes.
	_ = decode(r, &req)

	a, err := s.svc.StartAttempt(r.Context(), chi.URLParam(r, "quizID"),
		auth.ActorFromContext(r.Context()),
		quiz.StartOptions{Password: req.Password, DelayedStart: req.DelayedStart})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// startAttemptsForActors creates forced attempts for a batch of actors.
// All-or-nothing: one failure rolls the whole batch back.
func (s *Server) startAttemptsForActors(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorIDs []string `json:"actor_ids"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	attempts, err := s.svc.StartAttemptsForActors(r.Context(), chi.URLParam(r, "quizID"), req.ActorIDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempts)
}

func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID := r.URL.Query().Get("actor_id")
	// Without attempt:view-all a caller only ever sees their own attempts.
	if !s.canViewAll(ctx) {
		actorID = auth.ActorFromContext(ctx)
	}
	attempts, err := s.svc.Attempts(ctx, chi.URLParam(r, "quizID"), actorID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) revokeAttempts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorIDs []string `json:"actor_ids"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.svc.RevokeAttempts(r.Context(), chi.URLParam(r, "quizID"), req.ActorIDs); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) commitGradebook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id,omitempty"` // empty means every actor
	}
	_ = decode(r, &req)

	if err := s.svc.CommitBestToGradebook(r.Context(), chi.URLParam(r, "quizID"), req.ActorID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !s.ownsOrViewsAll(r, a) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) activateAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.ActivateAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) attemptQuestions(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !s.ownsOrViewsAll(r, a) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	qs, err := s.svc.SelectedQuestions(r.Context(), a.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (s *Server) saveResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Response []string `json:"response"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	sq, err := s.svc.SaveResponse(r.Context(), chi.URLParam(r, "attemptID"),
		chi.URLParam(r, "questionID"), req.Response)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sq)
}

func (s *Server) finishAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.ScoreAttempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
