package quiz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// seedSimpleQuiz wires one specific-question rule worth 10 points.
func seedSimpleQuiz(t *testing.T, env *testEnv, mutate func(*QuizInput)) Quiz {
	t.Helper()
	q := env.createQuiz(t, mutate)
	env.banks.addQuestion("", "q1", "choice_single", "a")
	if _, err := env.svc.AddSpecificRule(context.Background(), q.ID, "q1", 10); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	return q
}

func TestStartAttemptMaterializesQuestions(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.Status != StatusInProgress {
		t.Fatalf("status = %s", a.Status)
	}
	if a.StartTime == nil || !a.StartTime.Equal(testNow) {
		t.Fatalf("start time = %v", a.StartTime)
	}
	if a.FinishDeadline == nil || !a.FinishDeadline.Equal(testNow.Add(30*time.Minute)) {
		t.Fatalf("deadline = %v", a.FinishDeadline)
	}

	qs, err := env.svc.SelectedQuestions(ctx, a.ID)
	if err != nil {
		t.Fatalf("selected: %v", err)
	}
	if len(qs) != 1 || qs[0].QuestionID != "q1" || qs[0].Points != 10 {
		t.Fatalf("selected = %+v", qs)
	}
}

func TestStartAttemptOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, func(in *QuizInput) {
		in.AvailableFrom = testNow.Add(-2 * time.Hour)
		in.AvailableUntil = testNow.Add(-time.Hour)
	})
	_, err := env.svc.StartAttempt(context.Background(), q.ID, "alice", StartOptions{})
	if !errors.Is(err, ErrOutsideAvailabilityWindow) {
		t.Fatalf("want ErrOutsideAvailabilityWindow, got %v", err)
	}
}

func TestStartAttemptIgnoreTimeWindow(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, func(in *QuizInput) {
		in.AvailableFrom = testNow.Add(time.Hour)
		in.AvailableUntil = testNow.Add(2 * time.Hour)
	})
	_, err := env.svc.StartAttempt(context.Background(), q.ID, "alice", StartOptions{IgnoreTimeWindow: true})
	if err != nil {
		t.Fatalf("start with IgnoreTimeWindow: %v", err)
	}
}

func TestStartAttemptSecondActiveBlocked(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	if _, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{}); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if !errors.Is(err, ErrActiveAttemptExists) {
		t.Fatalf("want ErrActiveAttemptExists, got %v", err)
	}
	// A different actor is unaffected.
	if _, err := env.svc.StartAttempt(ctx, q.ID, "bob", StartOptions{}); err != nil {
		t.Fatalf("other actor blocked: %v", err)
	}
}

func TestStartAttemptQuotaCountsFinishedOnly(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, func(in *QuizInput) { in.MaxAttempts = 1 })
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.svc.ScoreAttempt(ctx, a.ID); err != nil {
		t.Fatalf("score: %v", err)
	}

	_, err = env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if !errors.Is(err, ErrAttemptQuotaExceeded) {
		t.Fatalf("want ErrAttemptQuotaExceeded, got %v", err)
	}
	// The forced path skips the quota.
	if _, err := env.svc.StartAttempt(ctx, q.ID, "alice", ForcedStart()); err != nil {
		t.Fatalf("forced start: %v", err)
	}
}

func TestStartAttemptPassword(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, func(in *QuizInput) {
		in.Protected = true
		in.Password = "hunter2"
	})
	ctx := context.Background()

	_, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{Password: "wrong"})
	if !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("want ErrPasswordRequired, got %v", err)
	}
	if _, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{Password: "hunter2"}); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
}

func TestStartSurveyRequiresEligibility(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, func(in *QuizInput) {
		in.Kind = KindSurvey
		in.Policy = PolicyOrgMembers
		in.AttachedTo = AttachRef{Kind: AttachOrganization, RefID: "org-1"}
	})
	env.banks.addBank("sb", KindSurvey)
	env.banks.addQuestion("sb", "sq1", "choice_single", "a")
	ctx := context.Background()
	if _, err := env.svc.AddBankRule(ctx, q.ID, "sb", BankAll, 1, 0); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	_, err := env.svc.StartAttempt(ctx, q.ID, "outsider", StartOptions{})
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("want ErrNotEligible, got %v", err)
	}

	env.orgs.addMember("org-1", "member", "")
	if _, err := env.svc.StartAttempt(ctx, q.ID, "member", StartOptions{}); err != nil {
		t.Fatalf("member blocked: %v", err)
	}
}

func TestStartAttemptEmptyRuleSetRollsBack(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, nil) // no rules
	ctx := context.Background()

	_, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	var failed *AttemptCreationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("want AttemptCreationFailedError, got %v", err)
	}

	attempts, err := env.svc.Attempts(ctx, q.ID, "")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("attempt row survived a failed creation: %+v", attempts)
	}
}

func TestStartAttemptsForActorsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	// bob already has a live attempt, so the whole batch must fail.
	if _, err := env.svc.StartAttempt(ctx, q.ID, "bob", StartOptions{}); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	_, err := env.svc.StartAttemptsForActors(ctx, q.ID, []string{"alice", "bob"})
	if !errors.Is(err, ErrActiveAttemptExists) {
		t.Fatalf("want wrapped ErrActiveAttemptExists, got %v", err)
	}
	attempts, _ := env.svc.Attempts(ctx, q.ID, "alice")
	if len(attempts) != 0 {
		t.Fatalf("batch partially applied: %+v", attempts)
	}

	out, err := env.svc.StartAttemptsForActors(ctx, q.ID, []string{"alice", "carol"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d attempts, want 2", len(out))
	}
}

func TestActivateDelayedAttempt(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{DelayedStart: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if a.StartTime != nil || a.FinishDeadline != nil {
		t.Fatalf("delayed attempt has a timer already: %+v", a)
	}

	a, err = env.svc.ActivateAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if a.StartTime == nil || a.FinishDeadline == nil {
		t.Fatalf("activation did not set the timer: %+v", a)
	}

	// Activating again is a no-op.
	again, err := env.svc.ActivateAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if !again.StartTime.Equal(*a.StartTime) {
		t.Fatalf("second activation moved the timer")
	}
}

func TestSaveResponseGradesImmediately(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	sq, err := env.svc.SaveResponse(ctx, a.ID, "q1", []string{"b"})
	if err != nil {
		t.Fatalf("save wrong answer: %v", err)
	}
	if sq.Earned != 0 || !sq.Answered {
		t.Fatalf("wrong answer settled badly: %+v", sq)
	}

	// Answer changes are off by default.
	if _, err := env.svc.SaveResponse(ctx, a.ID, "q1", []string{"a"}); err == nil {
		t.Fatal("answer change accepted despite allow_answer_change=false")
	}
}

func TestSaveResponseAllowsChangeWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, func(in *QuizInput) { in.AllowAnswerChange = true })
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.svc.SaveResponse(ctx, a.ID, "q1", []string{"b"}); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	sq, err := env.svc.SaveResponse(ctx, a.ID, "q1", []string{"a"})
	if err != nil {
		t.Fatalf("changed answer: %v", err)
	}
	if sq.Earned != 10 {
		t.Fatalf("earned = %d, want 10", sq.Earned)
	}
}

func TestSaveResponseAfterDeadline(t *testing.T) {
	current := testNow
	env := newTestEnv(t, WithClock(func() time.Time { return current }))
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	current = testNow.Add(31 * time.Minute) // past the 30 minute lead time
	_, err = env.svc.SaveResponse(ctx, a.ID, "q1", []string{"a"})
	if !errors.Is(err, ErrAttemptFinished) {
		t.Fatalf("want ErrAttemptFinished, got %v", err)
	}
}

func TestScoreAttemptTerminalTransition(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil) // passing score 8
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.svc.SaveResponse(ctx, a.ID, "q1", []string{"a"}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	scored, err := env.svc.ScoreAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if scored.Status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", scored.Status)
	}
	if scored.Score != 10 {
		t.Fatalf("score = %d, want 10", scored.Score)
	}
	if scored.Grade == 0 || scored.FinishedAt == nil {
		t.Fatalf("grade/finished not set: %+v", scored)
	}

	// Terminal attempts are frozen.
	if _, err := env.svc.SaveResponse(ctx, a.ID, "q1", []string{"b"}); !errors.Is(err, ErrAttemptFinished) {
		t.Fatalf("terminal attempt accepted an answer: %v", err)
	}
	again, err := env.svc.ScoreAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if again.Status != StatusSuccess || again.Score != 10 {
		t.Fatalf("rescore changed the result: %+v", again)
	}
}

func TestScoreAttemptBelowPassingFails(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	a, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	scored, err := env.svc.ScoreAttempt(ctx, a.ID) // nothing answered
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if scored.Status != StatusFailed || scored.Score != 0 {
		t.Fatalf("got %+v, want FAILED with 0", scored)
	}
}

var seededAttempts int

// seedTerminalAttempt inserts a finished attempt directly, bypassing the
// lifecycle, for gradebook and statistics tests.
func seedTerminalAttempt(t *testing.T, env *testEnv, quizID, actorID string, score int, dur time.Duration) Attempt {
	t.Helper()
	seededAttempts++
	start := testNow.Add(-time.Hour)
	end := start.Add(dur)
	a := Attempt{
		ID:         fmt.Sprintf("att-seed-%d", seededAttempts),
		QuizID:     quizID,
		ActorID:    actorID,
		Status:     StatusSuccess,
		StartTime:  &start,
		FinishedAt: &end,
		Score:      score,
	}
	if err := env.store.CreateAttempt(context.Background(), &a); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	return a
}

func TestCommitBestToGradebookLinksBestOnly(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, func(in *QuizInput) {
		in.AttachedTo = AttachRef{Kind: AttachLesson, RefID: "lesson-1"}
	})
	ctx := context.Background()

	low := seedTerminalAttempt(t, env, q.ID, "alice", 70, 10*time.Minute)
	high := seedTerminalAttempt(t, env, q.ID, "alice", 85, 12*time.Minute)

	if err := env.svc.CommitBestToGradebook(ctx, q.ID, ""); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := env.svc.GetAttempt(ctx, high.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GradebookRef == "" {
		t.Fatal("best attempt has no gradebook ref")
	}
	other, _ := env.svc.GetAttempt(ctx, low.ID)
	if other.GradebookRef != "" {
		t.Fatalf("non-best attempt linked: %+v", other)
	}
}

func TestCommitBestToGradebookSkipsActorsWithLiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, func(in *QuizInput) {
		in.AttachedTo = AttachRef{Kind: AttachLesson, RefID: "lesson-1"}
	})
	ctx := context.Background()

	done := seedTerminalAttempt(t, env, q.ID, "alice", 60, 5*time.Minute)
	live := Attempt{ID: "att-live", QuizID: q.ID, ActorID: "alice", Status: StatusInProgress}
	if err := env.store.CreateAttempt(ctx, &live); err != nil {
		t.Fatalf("seed live attempt: %v", err)
	}

	if err := env.svc.CommitBestToGradebook(ctx, q.ID, ""); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, _ := env.svc.GetAttempt(ctx, done.ID)
	if got.GradebookRef != "" {
		t.Fatalf("actor with live attempt was committed: %+v", got)
	}
}

func TestCommitBestToGradebookRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, func(in *QuizInput) {
		in.AttachedTo = AttachRef{Kind: AttachLesson, RefID: "lesson-1"}
	})
	ctx := context.Background()

	a := seedTerminalAttempt(t, env, q.ID, "alice", 50, 5*time.Minute)
	env.gb.fail["alice"] = errors.New("gradebook down")

	if err := env.svc.CommitBestToGradebook(ctx, q.ID, ""); err == nil {
		t.Fatal("commit succeeded despite gradebook failure")
	}
	got, _ := env.svc.GetAttempt(ctx, a.ID)
	if got.GradebookRef != "" {
		t.Fatalf("failed batch left a link behind: %+v", got)
	}
}

func TestCommitBestToGradebookRejectsNonLessonQuiz(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, nil) // not attached to a lesson
	if err := env.svc.CommitBestToGradebook(context.Background(), q.ID, ""); err == nil {
		t.Fatal("commit accepted a quiz without a lesson attachment")
	}
}

func TestAverageDuration(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, nil)
	ctx := context.Background()

	// No terminal attempts yet: the bool sentinel must be false.
	if _, ok, err := env.svc.AverageDuration(ctx, q.ID, ""); err != nil || ok {
		t.Fatalf("empty quiz: ok=%v err=%v", ok, err)
	}

	seedTerminalAttempt(t, env, q.ID, "alice", 10, 10*time.Minute)
	seedTerminalAttempt(t, env, q.ID, "bob", 20, 20*time.Minute)
	live := Attempt{ID: "att-live", QuizID: q.ID, ActorID: "carol", Status: StatusInProgress}
	if err := env.store.CreateAttempt(ctx, &live); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d, ok, err := env.svc.AverageDuration(ctx, q.ID, "")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if d != 15*time.Minute {
		t.Fatalf("average = %v, want 15m", d)
	}
}

func TestRevokeAttemptsStopsCounting(t *testing.T) {
	env := newTestEnv(t)
	q := seedSimpleQuiz(t, env, nil)
	ctx := context.Background()

	if _, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n, _ := env.svc.AttemptCount(ctx, q.ID); n != 1 {
		t.Fatalf("attempt count = %d, want 1", n)
	}

	if err := env.svc.RevokeAttempts(ctx, q.ID, []string{"alice"}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if n, _ := env.svc.AttemptCount(ctx, q.ID); n != 0 {
		t.Fatalf("attempt count after revoke = %d, want 0", n)
	}
	// The lock is released too.
	if _, err := env.svc.StartAttempt(ctx, q.ID, "alice", StartOptions{}); err != nil {
		t.Fatalf("restart after revoke: %v", err)
	}
}
