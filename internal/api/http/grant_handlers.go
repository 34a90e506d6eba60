package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/eduforge/assess/internal/auth/middleware"
	"github.com/eduforge/assess/internal/quiz"
	"github.com/eduforge/assess/internal/rbac"
)

var perms = rbac.NewChecker(nil)

func (s *Server) canViewAll(ctx context.Context) bool {
	return perms.Has(rbac.RoleFromContext(ctx), "attempt:view-all")
}

func (s *Server) ownsOrViewsAll(r *http.Request, a quiz.Attempt) bool {
	return a.ActorID == auth.ActorFromContext(r.Context()) || s.canViewAll(r.Context())
}

type grantRequest struct {
	Variant        string   `json:"variant"`
	OrgID          string   `json:"org_id,omitempty"`
	RoleID         string   `json:"role_id,omitempty"`
	CardTemplateID string   `json:"card_template_id,omitempty"`
	SeatCount      int      `json:"seat_count,omitempty"`
	Filter         string   `json:"filter,omitempty"`
	UserIDs        []string `json:"user_ids,omitempty"`
}

func (s *Server) addGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	g, err := s.svc.AddGrant(r.Context(), chi.URLParam(r, "quizID"), quiz.GrantInput{
		Variant:        quiz.GrantVariant(req.Variant),
		OrgID:          req.OrgID,
		RoleID:         req.RoleID,
		CardTemplateID: req.CardTemplateID,
		SeatCount:      req.SeatCount,
		FilterJSON:     req.Filter,
		UserIDs:        req.UserIDs,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	gs, err := s.svc.Grants(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

func (s *Server) revokeGrant(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RevokeGrant(r.Context(), chi.URLParam(r, "quizID"), chi.URLParam(r, "grantID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addGrantUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	err := s.svc.AddGrantUser(r.Context(), chi.URLParam(r, "quizID"),
		chi.URLParam(r, "grantID"), req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeGrantUser(w http.ResponseWriter, r *http.Request) {
	err := s.svc.RemoveGrantUser(r.Context(), chi.URLParam(r, "quizID"),
		chi.URLParam(r, "grantID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
