package quiz

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduforge/assess/internal/cache"
	"github.com/eduforge/assess/internal/grading"
)

// Service is the in-process assessment engine. Request handlers call it
// directly; it owns rule validation, attempt lifecycle, grading-scale
// lookup, access resolution and derived-value caching.
type Service struct {
	store     Store
	banks     BankRepo
	orgs      OrgProvider
	gradebook Gradebook
	events    Events
	cached    *CachedValues
	rules     *RuleSet
	gen       *Generator
	resolver  *AccessResolver
	check     grading.Checker
	now       Clock
}

type ServiceOption func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) ServiceOption { return func(s *Service) { s.now = c } }

// WithRand replaces the sampling source of the question generator.
func WithRand(r *rand.Rand) ServiceOption {
	return func(s *Service) { s.gen = NewGenerator(s.banks, r) }
}

func NewService(store Store, banks BankRepo, orgs OrgProvider, gb Gradebook, ev Events, c cache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		banks:     banks,
		orgs:      orgs,
		gradebook: gb,
		events:    ev,
		cached:    NewCachedValues(c),
		rules:     NewRuleSet(banks),
		gen:       NewGenerator(banks, nil),
		resolver:  NewAccessResolver(store, orgs),
		check:     grading.NewChecker(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Resolver exposes the access resolver for callers that only need
// eligibility answers.
func (s *Service) Resolver() *AccessResolver { return s.resolver }

// forgetCache invalidates the quiz's derived values after a committed
// mutation. A backend failure only costs a recomputation on the next read,
// so it is logged, never surfaced.
func (s *Service) forgetCache(ctx context.Context, quizID string) {
	if err := s.cached.Forget(ctx, quizID); err != nil {
		log.Printf("forget cache for quiz %s: %v", quizID, err)
	}
}

/* ---------------- quiz lifecycle ---------------- */

type QuizInput struct {
	Kind              Kind
	Title             string
	AvailableFrom     time.Time
	AvailableUntil    time.Time
	LeadTimeMinutes   int
	PassingScore      int
	MaxAttempts       int
	AllowAnswerChange bool
	ShowResultDetail  bool
	Protected         bool
	Password          string
	Policy            EligibilityPolicy
	PolicyRoleID      string
	AttachedTo        AttachRef
}

func (in QuizInput) validate() error {
	if in.Kind != KindTest && in.Kind != KindSurvey {
		return errors.New("kind must be test or survey")
	}
	if !in.AvailableUntil.After(in.AvailableFrom) {
		return errors.New("available_until must be after available_from")
	}
	if in.LeadTimeMinutes <= 0 {
		return errors.New("lead_time_minutes must be positive")
	}
	if in.Protected && in.Password == "" {
		return errors.New("protected quiz needs a password")
	}
	return nil
}

func (s *Service) CreateQuiz(ctx context.Context, actorID string, in QuizInput) (Quiz, error) {
	if err := in.validate(); err != nil {
		return Quiz{}, err
	}
	now := s.now()
	q := Quiz{
		ID:                uuid.NewString(),
		Kind:              in.Kind,
		Title:             in.Title,
		AvailableFrom:     in.AvailableFrom,
		AvailableUntil:    in.AvailableUntil,
		LeadTimeMinutes:   in.LeadTimeMinutes,
		PassingScore:      in.PassingScore,
		MaxAttempts:       in.MaxAttempts,
		AllowAnswerChange: in.AllowAnswerChange,
		ShowResultDetail:  in.ShowResultDetail,
		Protected:         in.Protected,
		Policy:            in.Policy,
		PolicyRoleID:      in.PolicyRoleID,
		AttachedTo:        in.AttachedTo,
		CreatorID:         actorID,
		EditorID:          actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Protected {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return Quiz{}, err
		}
		q.PasswordHash = string(hash)
	}
	if err := s.store.CreateQuiz(ctx, &q); err != nil {
		return Quiz{}, persistErr("create quiz", err)
	}
	return q, nil
}

func (s *Service) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	return s.store.GetQuiz(ctx, id)
}

func (s *Service) UpdateQuiz(ctx context.Context, actorID, quizID string, in QuizInput) (Quiz, error) {
	if err := in.validate(); err != nil {
		return Quiz{}, err
	}
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, err
	}
	q.Kind = in.Kind
	q.Title = in.Title
	q.AvailableFrom = in.AvailableFrom
	q.AvailableUntil = in.AvailableUntil
	q.LeadTimeMinutes = in.LeadTimeMinutes
	q.PassingScore = in.PassingScore
	q.MaxAttempts = in.MaxAttempts
	q.AllowAnswerChange = in.AllowAnswerChange
	q.ShowResultDetail = in.ShowResultDetail
	q.Policy = in.Policy
	q.PolicyRoleID = in.PolicyRoleID
	q.AttachedTo = in.AttachedTo
	q.EditorID = actorID
	q.UpdatedAt = s.now()
	if in.Protected != q.Protected || (in.Protected && in.Password != "") {
		q.Protected = in.Protected
		q.PasswordHash = ""
		if in.Protected {
			hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
			if err != nil {
				return Quiz{}, err
			}
			q.PasswordHash = string(hash)
		}
	}
	if err := s.store.UpdateQuiz(ctx, &q); err != nil {
		return Quiz{}, persistErr("update quiz", err)
	}
	s.forgetCache(ctx, quizID)
	return q, nil
}

// DeleteQuiz soft-deletes a quiz and hard-deletes its rules, scale rows and
// grants in one transaction. A quiz with any attempt, finished or not,
// cannot be deleted.
func (s *Service) DeleteQuiz(ctx context.Context, quizID string) error {
	n, err := s.store.CountAttempts(ctx, quizID, AttemptFilter{IncludeDeleted: true})
	if err != nil {
		return persistErr("count attempts", err)
	}
	if n > 0 {
		return ErrQuizHasAttempts
	}
	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.DeleteAllRules(ctx, quizID); err != nil {
			return err
		}
		if err := tx.DeleteScaleRows(ctx, quizID); err != nil {
			return err
		}
		if err := tx.DeleteAllGrants(ctx, quizID); err != nil {
			return err
		}
		if err := tx.DeleteQuiz(ctx, quizID, s.now()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return persistErr("delete quiz", err)
	}
	s.forgetCache(ctx, quizID)
	return nil
}

/* ---------------- rules ---------------- */

func (s *Service) Rules(ctx context.Context, quizID string) ([]Rule, error) {
	return s.store.Rules(ctx, quizID)
}

// AddSpecificRule adds a specific-question rule after checking overlap and
// kind compatibility. No partial rule survives a failed validation.
func (s *Service) AddSpecificRule(ctx context.Context, quizID, questionID string, points int) (Rule, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Rule{}, err
	}
	existing, err := s.store.Rules(ctx, quizID)
	if err != nil {
		return Rule{}, persistErr("rules", err)
	}
	if err := s.rules.ValidateAddSpecific(ctx, q, existing, questionID); err != nil {
		return Rule{}, err
	}
	r := Rule{
		ID:         uuid.NewString(),
		QuizID:     quizID,
		Variant:    RuleSpecific,
		Position:   len(existing),
		QuestionID: questionID,
		Points:     points,
	}
	if err := s.store.AddRule(ctx, &r); err != nil {
		return Rule{}, persistErr("add rule", err)
	}
	s.forgetCache(ctx, quizID)
	return r, nil
}

// AddBankRule adds an all-from-bank rule (count ignored) or a
// random-from-bank rule for count questions.
func (s *Service) AddBankRule(ctx context.Context, quizID, bankID string, mode BankMode, points, count int) (Rule, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Rule{}, err
	}
	existing, err := s.store.Rules(ctx, quizID)
	if err != nil {
		return Rule{}, persistErr("rules", err)
	}
	if err := s.rules.ValidateAddBank(ctx, q, existing, bankID, mode, count); err != nil {
		return Rule{}, err
	}
	r := Rule{
		ID:       uuid.NewString(),
		QuizID:   quizID,
		Position: len(existing),
		BankID:   bankID,
		Points:   points,
	}
	if mode == BankRandom {
		r.Variant = RuleRandomFromBank
		r.Count = count
	} else {
		r.Variant = RuleAllFromBank
	}
	if err := s.store.AddRule(ctx, &r); err != nil {
		return Rule{}, persistErr("add rule", err)
	}
	s.forgetCache(ctx, quizID)
	return r, nil
}

func (s *Service) UpdateRulePoints(ctx context.Context, quizID, ruleID string, points int) error {
	if err := s.store.UpdateRulePoints(ctx, quizID, ruleID, points); err != nil {
		return persistErr("update rule", err)
	}
	s.forgetCache(ctx, quizID)
	return nil
}

func (s *Service) DeleteRule(ctx context.Context, quizID, ruleID string) error {
	if err := s.store.DeleteRule(ctx, quizID, ruleID); err != nil {
		return persistErr("delete rule", err)
	}
	s.forgetCache(ctx, quizID)
	return nil
}

func (s *Service) DeleteAllRules(ctx context.Context, quizID string) error {
	err := s.store.WithTx(ctx, func(tx Store) error {
		return tx.DeleteAllRules(ctx, quizID)
	})
	if err != nil {
		return persistErr("delete rules", err)
	}
	s.forgetCache(ctx, quizID)
	return nil
}

/* ---------------- derived aggregates ---------------- */

// QuestionCount is the cached "how many questions would an attempt have".
func (s *Service) QuestionCount(ctx context.Context, quizID string) (int, error) {
	return s.cached.QuestionCount(ctx, quizID, func() (int, error) {
		rules, err := s.store.Rules(ctx, quizID)
		if err != nil {
			return 0, persistErr("rules", err)
		}
		return CountQuestions(ctx, s.banks, rules)
	})
}

// MaxScore is the cached sum of every rule's total point value.
func (s *Service) MaxScore(ctx context.Context, quizID string) (int, error) {
	return s.cached.MaxScore(ctx, quizID, func() (int, error) {
		rules, err := s.store.Rules(ctx, quizID)
		if err != nil {
			return 0, persistErr("rules", err)
		}
		return MaxScore(ctx, s.banks, rules)
	})
}

// AttemptCount is the cached number of attempts ever started on the quiz.
func (s *Service) AttemptCount(ctx context.Context, quizID string) (int, error) {
	return s.cached.AttemptCount(ctx, quizID, func() (int, error) {
		n, err := s.store.CountAttempts(ctx, quizID, AttemptFilter{})
		if err != nil {
			return 0, persistErr("count attempts", err)
		}
		return n, nil
	})
}

// Editable reports whether rules may still be added: editing is frozen once
// anyone has attempted the quiz.
func (s *Service) Editable(ctx context.Context, quizID string) (bool, error) {
	n, err := s.AttemptCount(ctx, quizID)
	return n == 0, err
}

/* ---------------- grading scale ---------------- */

// ScaleRows returns the quiz's custom scale, or the process-wide default
// when no custom rows exist.
func (s *Service) ScaleRows(ctx context.Context, quizID string) ([]ScaleRow, error) {
	rows, err := s.cached.ScaleRows(ctx, quizID, func() ([]ScaleRow, error) {
		rows, err := s.store.ScaleRows(ctx, quizID)
		if err != nil {
			return nil, persistErr("scale rows", err)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return DefaultScale, nil
	}
	return rows, nil
}

// UsesDefaultScale reports whether the quiz has no custom scale rows.
func (s *Service) UsesDefaultScale(ctx context.Context, quizID string) (bool, error) {
	n, err := s.cached.ScaleRowCount(ctx, quizID, func() (int, error) {
		n, err := s.store.ScaleRowCount(ctx, quizID)
		if err != nil {
			return 0, persistErr("scale row count", err)
		}
		return n, nil
	})
	return n == 0, err
}

// ReplaceScale validates rows and atomically swaps the quiz's scale. A
// failed validation leaves the prior scale untouched.
func (s *Service) ReplaceScale(ctx context.Context, quizID string, rows []ScaleRow) error {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return err
	}
	if err := ValidateScale(rows); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.DeleteScaleRows(ctx, quizID); err != nil {
			return err
		}
		return tx.InsertScaleRows(ctx, quizID, rows)
	})
	if err != nil {
		return persistErr("replace scale", err)
	}
	s.forgetCache(ctx, quizID)
	return nil
}

// DeleteScale drops the custom scale; the quiz falls back to the default.
func (s *Service) DeleteScale(ctx context.Context, quizID string) error {
	err := s.store.WithTx(ctx, func(tx Store) error {
		return tx.DeleteScaleRows(ctx, quizID)
	})
	if err != nil {
		return persistErr("delete scale", err)
	}
	s.forgetCache(ctx, quizID)
	return nil
}

// GradeFor maps a raw score onto the quiz's scale.
func (s *Service) GradeFor(ctx context.Context, quizID string, score int) (int, error) {
	rows, err := s.ScaleRows(ctx, quizID)
	if err != nil {
		return 0, err
	}
	return gradeForRows(rows, score), nil
}
