package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduforge/assess/internal/grading"
)

// StartOptions carries the policy flags of attempt creation. The skip flags
// exist for forced/administrator paths; self-service starts leave them off.
type StartOptions struct {
	IgnoreTimeWindow  bool
	DelayedStart      bool
	SkipQuotaCheck    bool
	SkipActiveCheck   bool
	SkipPasswordCheck bool
	Password          string
}

// ForcedStart is what administrator-created attempts use: the actor-facing
// checks are skipped, the availability window still applies.
func ForcedStart() StartOptions {
	return StartOptions{SkipQuotaCheck: true, SkipActiveCheck: false, SkipPasswordCheck: true}
}

// StartAttempt runs the eligibility checks and, inside one transaction,
// creates the attempt row and materializes its question list. Either both
// persist or neither does.
func (s *Service) StartAttempt(ctx context.Context, quizID, actorID string, opts StartOptions) (Attempt, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if err := s.checkStart(ctx, s.store, q, actorID, opts); err != nil {
		return Attempt{}, err
	}

	var attempt Attempt
	err = s.store.WithTx(ctx, func(tx Store) error {
		a, err := s.createAttemptTx(ctx, tx, q, actorID, opts)
		if err != nil {
			return err
		}
		attempt = a
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	s.forgetCache(ctx, quizID)
	return attempt, nil
}

// StartAttemptsForActors force-creates one attempt per actor inside a single
// transaction. The first failure aborts the whole batch.
func (s *Service) StartAttemptsForActors(ctx context.Context, quizID string, actorIDs []string) ([]Attempt, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	opts := ForcedStart()
	if now := s.now(); now.Before(q.AvailableFrom) || now.After(q.AvailableUntil) {
		return nil, ErrOutsideAvailabilityWindow
	}

	var out []Attempt
	err = s.store.WithTx(ctx, func(tx Store) error {
		for _, actorID := range actorIDs {
			if err := s.checkStart(ctx, tx, q, actorID, opts); err != nil {
				return fmt.Errorf("actor %s: %w", actorID, err)
			}
			a, err := s.createAttemptTx(ctx, tx, q, actorID, opts)
			if err != nil {
				return fmt.Errorf("actor %s: %w", actorID, err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.forgetCache(ctx, quizID)
	return out, nil
}

// checkStart evaluates the pre-creation policy: availability window, attempt
// quota, active-attempt lock, password, survey eligibility. Each check is
// independently skippable per StartOptions.
func (s *Service) checkStart(ctx context.Context, store Store, q Quiz, actorID string, opts StartOptions) error {
	now := s.now()

	if !opts.IgnoreTimeWindow {
		if now.Before(q.AvailableFrom) || now.After(q.AvailableUntil) {
			return ErrOutsideAvailabilityWindow
		}
	}

	if !opts.SkipQuotaCheck && q.MaxAttempts > 0 {
		finished := 0
		attempts, err := store.Attempts(ctx, q.ID, AttemptFilter{ActorID: actorID})
		if err != nil {
			return persistErr("attempts", err)
		}
		for _, a := range attempts {
			if a.Status.Terminal() {
				finished++
			}
		}
		if finished >= q.MaxAttempts {
			return ErrAttemptQuotaExceeded
		}
	}

	if !opts.SkipActiveCheck {
		n, err := store.CountAttempts(ctx, q.ID, AttemptFilter{ActorID: actorID, Status: StatusInProgress})
		if err != nil {
			return persistErr("count attempts", err)
		}
		if n > 0 {
			return ErrActiveAttemptExists
		}
	}

	if q.Protected && !opts.SkipPasswordCheck {
		if bcrypt.CompareHashAndPassword([]byte(q.PasswordHash), []byte(opts.Password)) != nil {
			return ErrPasswordRequired
		}
	}

	if q.Kind == KindSurvey {
		ok, err := s.resolver.IsEligible(ctx, q, actorID)
		if err != nil {
			return persistErr("eligibility", err)
		}
		if !ok {
			return ErrNotEligible
		}
	}
	return nil
}

// createAttemptTx inserts the attempt and its generated question list. The
// store enforces the one-active-attempt invariant with a unique index, so
// two racing starts cannot both commit.
func (s *Service) createAttemptTx(ctx context.Context, tx Store, q Quiz, actorID string, opts StartOptions) (Attempt, error) {
	now := s.now()
	a := Attempt{
		ID:      uuid.NewString(),
		QuizID:  q.ID,
		ActorID: actorID,
		Status:  StatusInProgress,
	}
	if !opts.DelayedStart {
		deadline := now.Add(time.Duration(q.LeadTimeMinutes) * time.Minute)
		a.StartTime = &now
		a.FinishDeadline = &deadline
	}
	if err := tx.CreateAttempt(ctx, &a); err != nil {
		return Attempt{}, &AttemptCreationFailedError{QuizID: q.ID, ActorID: actorID, Cause: err}
	}

	rules, err := tx.Rules(ctx, q.ID)
	if err != nil {
		return Attempt{}, &AttemptCreationFailedError{QuizID: q.ID, ActorID: actorID, Cause: err}
	}
	selected, err := s.gen.Generate(ctx, a.ID, rules)
	if err != nil {
		return Attempt{}, &AttemptCreationFailedError{QuizID: q.ID, ActorID: actorID, Cause: err}
	}
	if len(selected) == 0 {
		return Attempt{}, &AttemptCreationFailedError{QuizID: q.ID, ActorID: actorID, Cause: errors.New("rule set produced no questions")}
	}
	if err := tx.InsertSelectedQuestions(ctx, selected); err != nil {
		return Attempt{}, &AttemptCreationFailedError{QuizID: q.ID, ActorID: actorID, Cause: err}
	}
	return a, nil
}

// ActivateAttempt starts the timer of a delayed-start attempt.
func (s *Service) ActivateAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status.Terminal() {
		return Attempt{}, ErrAttemptFinished
	}
	if a.StartTime != nil {
		return a, nil
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	now := s.now()
	deadline := now.Add(time.Duration(q.LeadTimeMinutes) * time.Minute)
	a.StartTime = &now
	a.FinishDeadline = &deadline
	if err := s.store.UpdateAttempt(ctx, &a); err != nil {
		return Attempt{}, persistErr("update attempt", err)
	}
	return a, nil
}

// SelectedQuestions returns an attempt's fixed question list.
func (s *Service) SelectedQuestions(ctx context.Context, attemptID string) ([]SelectedQuestion, error) {
	return s.store.SelectedQuestions(ctx, attemptID)
}

// SaveResponse records the actor's response to one selected question and
// settles the earned points right away. Changing a recorded answer needs
// the quiz's allow_answer_change setting.
func (s *Service) SaveResponse(ctx context.Context, attemptID, questionID string, response []string) (SelectedQuestion, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return SelectedQuestion{}, err
	}
	if a.Status.Terminal() {
		return SelectedQuestion{}, ErrAttemptFinished
	}
	now := s.now()
	if a.FinishDeadline != nil && now.After(*a.FinishDeadline) {
		return SelectedQuestion{}, ErrAttemptFinished
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return SelectedQuestion{}, err
	}

	selected, err := s.store.SelectedQuestions(ctx, attemptID)
	if err != nil {
		return SelectedQuestion{}, persistErr("selected questions", err)
	}
	var target *SelectedQuestion
	for i := range selected {
		if selected[i].QuestionID == questionID {
			target = &selected[i]
			break
		}
	}
	if target == nil {
		return SelectedQuestion{}, ErrNotFound
	}
	if target.Answered && !q.AllowAnswerChange {
		return SelectedQuestion{}, errors.New("answer changes are disabled for this quiz")
	}

	question, err := s.banks.GetQuestion(ctx, questionID)
	if err != nil {
		return SelectedQuestion{}, persistErr("get question", err)
	}
	correct, err := s.check.Correct(grading.Q{Type: question.Type, AnswerKey: question.AnswerKey}, response)
	if err != nil {
		return SelectedQuestion{}, err
	}
	target.Response = response
	target.Answered = true
	target.Earned = 0
	if correct {
		target.Earned = target.Points
	}
	if err := s.store.UpdateSelectedQuestion(ctx, target); err != nil {
		return SelectedQuestion{}, persistErr("update selected question", err)
	}
	return *target, nil
}

// ScoreAttempt finalizes an attempt: sums earned points, converts the raw
// score to a grade via the scale, and moves the attempt into its terminal
// status. Terminal attempts never transition again.
func (s *Service) ScoreAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status.Terminal() {
		return a, nil
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	selected, err := s.store.SelectedQuestions(ctx, attemptID)
	if err != nil {
		return Attempt{}, persistErr("selected questions", err)
	}

	score := 0
	for _, sq := range selected {
		score += sq.Earned
	}
	grade, err := s.GradeFor(ctx, a.QuizID, score)
	if err != nil {
		return Attempt{}, err
	}

	now := s.now()
	a.Score = score
	a.Grade = grade
	a.FinishedAt = &now
	if score >= q.PassingScore {
		a.Status = StatusSuccess
	} else {
		a.Status = StatusFailed
	}
	if err := s.store.UpdateAttempt(ctx, &a); err != nil {
		return Attempt{}, persistErr("update attempt", err)
	}
	return a, nil
}

// CommitBestToGradebook links each actor's best-scored attempt to a
// gradebook entry for the quiz's lesson. actorID narrows the batch to one
// actor; empty means everyone with attempts. Actors with a non-terminal
// attempt are skipped. The whole batch is one transaction: the first
// failure rolls every link back.
func (s *Service) CommitBestToGradebook(ctx context.Context, quizID, actorID string) error {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if q.Kind != KindTest || q.AttachedTo.Kind != AttachLesson {
		return errors.New("quiz is not a test attached to a lesson")
	}

	return s.store.WithTx(ctx, func(tx Store) error {
		attempts, err := tx.Attempts(ctx, quizID, AttemptFilter{ActorID: actorID})
		if err != nil {
			return err
		}
		byActor := map[string][]Attempt{}
		for _, a := range attempts {
			byActor[a.ActorID] = append(byActor[a.ActorID], a)
		}

		for actor, list := range byActor {
			unfinished := false
			for _, a := range list {
				if !a.Status.Terminal() {
					unfinished = true
					break
				}
			}
			if unfinished {
				continue
			}

			best := list[0]
			for _, a := range list[1:] {
				if a.Score > best.Score {
					best = a
				}
			}

			ref, err := s.gradebook.GetOrCreate(ctx, actor, q.AttachedTo.RefID)
			if err != nil {
				return fmt.Errorf("actor %s: gradebook: %w", actor, err)
			}
			best.GradebookRef = ref
			if err := tx.UpdateAttempt(ctx, &best); err != nil {
				return fmt.Errorf("actor %s: %w", actor, err)
			}
		}
		return nil
	})
}

// AverageDuration is the mean time of terminal attempts with a recorded
// duration. The bool is false when no attempt qualifies; callers must not
// read the duration then.
func (s *Service) AverageDuration(ctx context.Context, quizID, actorID string) (time.Duration, bool, error) {
	attempts, err := s.store.Attempts(ctx, quizID, AttemptFilter{ActorID: actorID})
	if err != nil {
		return 0, false, persistErr("attempts", err)
	}
	var total time.Duration
	n := 0
	for _, a := range attempts {
		if !a.Status.Terminal() {
			continue
		}
		if d, ok := a.Duration(); ok {
			total += d
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return total / time.Duration(n), true, nil
}

// RevokeAttempts soft-deletes the attempts of the given actors. Rows stay
// in the store; they just stop counting.
func (s *Service) RevokeAttempts(ctx context.Context, quizID string, actorIDs []string) error {
	if len(actorIDs) == 0 {
		return nil
	}
	if err := s.store.SoftDeleteAttempts(ctx, quizID, actorIDs, s.now()); err != nil {
		return persistErr("soft delete attempts", err)
	}
	s.forgetCache(ctx, quizID)
	return nil
}

// Attempts lists a quiz's attempts, optionally narrowed to one actor.
func (s *Service) Attempts(ctx context.Context, quizID, actorID string) ([]Attempt, error) {
	return s.store.Attempts(ctx, quizID, AttemptFilter{ActorID: actorID})
}

// GetAttempt fetches one attempt.
func (s *Service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.store.GetAttempt(ctx, id)
}
