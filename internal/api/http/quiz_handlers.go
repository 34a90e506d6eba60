package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	auth "github.com/eduforge/assess/internal/auth/middleware"
	"github.com/eduforge/assess/internal/quiz"
)

type quizRequest struct {
	Kind              string `json:"kind"`
	Title             string `json:"title"`
	AvailableFrom     int64  `json:"available_from"`  // unix seconds
	AvailableUntil    int64  `json:"available_until"` // unix seconds
	LeadTimeMinutes   int    `json:"lead_time_minutes"`
	PassingScore      int    `json:"passing_score"`
	MaxAttempts       int    `json:"max_attempts"`
	AllowAnswerChange bool   `json:"allow_answer_change"`
	ShowResultDetail  bool   `json:"show_result_detail"`
	Protected         bool   `json:"protected"`
	Password          string `json:"password,omitempty"`
	Policy            string `json:"policy,omitempty"`
	PolicyRoleID      string `json:"policy_role_id,omitempty"`
	AttachedKind      string `json:"attached_kind,omitempty"`
	AttachedRef       string `json:"attached_ref,omitempty"`
}

func (req quizRequest) toInput() quiz.QuizInput {
	in := quiz.QuizInput{
		Kind:              quiz.Kind(req.Kind),
		Title:             req.Title,
		AvailableFrom:     time.Unix(req.AvailableFrom, 0),
		AvailableUntil:    time.Unix(req.AvailableUntil, 0),
		LeadTimeMinutes:   req.LeadTimeMinutes,
		PassingScore:      req.PassingScore,
		MaxAttempts:       req.MaxAttempts,
		AllowAnswerChange: req.AllowAnswerChange,
		ShowResultDetail:  req.ShowResultDetail,
		Protected:         req.Protected,
		Password:          req.Password,
		Policy:            quiz.EligibilityPolicy(req.Policy),
		PolicyRoleID:      req.PolicyRoleID,
		AttachedTo:        quiz.AttachRef{Kind: req.AttachedKind, RefID: req.AttachedRef},
	}
	if in.Policy == "" {
		in.Policy = quiz.PolicyAll
	}
	return in
}

func (s *Server) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	q, err := s.svc.CreateQuiz(r.Context(), auth.ActorFromContext(r.Context()), req.toInput())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) getQuiz(w http.ResponseWriter, r *http.Request) {
	q, err := s.svc.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) updateQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	q, err := s.svc.UpdateQuiz(r.Context(), auth.ActorFromContext(r.Context()),
		chi.URLParam(r, "quizID"), req.toInput())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteQuiz(r.Context(), chi.URLParam(r, "quizID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// quizSummary serves the cached derived values in one response.
func (s *Server) quizSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	quizID := chi.URLParam(r, "quizID")

	qc, err := s.svc.QuestionCount(ctx, quizID)
	if err != nil {
		writeErr(w, err)
		return
	}
	max, err := s.svc.MaxScore(ctx, quizID)
	if err != nil {
		writeErr(w, err)
		return
	}
	ac, err := s.svc.AttemptCount(ctx, quizID)
	if err != nil {
		writeErr(w, err)
		return
	}
	editable, err := s.svc.Editable(ctx, quizID)
	if err != nil {
		writeErr(w, err)
		return
	}
	defScale, err := s.svc.UsesDefaultScale(ctx, quizID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question_count":     qc,
		"max_score":          max,
		"attempt_count":      ac,
		"editable":           editable,
		"uses_default_scale": defScale,
	})
}

/* ---------------- rules ---------------- */

type ruleRequest struct {
	Variant    string `json:"variant"` // specific-question, all-from-bank, random-from-bank
	QuestionID string `json:"question_id,omitempty"`
	BankID     string `json:"bank_id,omitempty"`
	Points     int    `json:"points"`
	Count      int    `json:"count,omitempty"`
}

func (s *Server) addRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	quizID := chi.URLParam(r, "quizID")

	var (
		rule quiz.Rule
		err  error
	)
	switch quiz.RuleVariant(req.Variant) {
	case quiz.RuleSpecific:
		rule, err = s.svc.AddSpecificRule(r.Context(), quizID, req.QuestionID, req.Points)
	case quiz.RuleAllFromBank:
		rule, err = s.svc.AddBankRule(r.Context(), quizID, req.BankID, quiz.BankAll, req.Points, 0)
	case quiz.RuleRandomFromBank:
		rule, err = s.svc.AddBankRule(r.Context(), quizID, req.BankID, quiz.BankRandom, req.Points, req.Count)
	default:
		http.Error(w, "unknown rule variant", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Rules(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) updateRulePoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int `json:"points"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	err := s.svc.UpdateRulePoints(r.Context(), chi.URLParam(r, "quizID"), chi.URLParam(r, "ruleID"), req.Points)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	err := s.svc.DeleteRule(r.Context(), chi.URLParam(r, "quizID"), chi.URLParam(r, "ruleID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteAllRules(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteAllRules(r.Context(), chi.URLParam(r, "quizID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/* ---------------- grading scale ---------------- */

func (s *Server) getScale(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.ScaleRows(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) replaceScale(w http.ResponseWriter, r *http.Request) {
	var rows []quiz.ScaleRow
	if err := decode(r, &rows); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.svc.ReplaceScale(r.Context(), chi.URLParam(r, "quizID"), rows); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteScale(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteScale(r.Context(), chi.URLParam(r, "quizID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
