package quiz

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock func() time.Time

// BankRepo is the question/bank lookup collaborator. Implementations live
// outside this engine (question-bank service, fixture fakes in tests).
type BankRepo interface {
	GetQuestion(ctx context.Context, id string) (Question, error)
	// QuestionsInBank returns the active questions of a bank, stable order.
	QuestionsInBank(ctx context.Context, bankID string) ([]Question, error)
	ActiveCountInBank(ctx context.Context, bankID string) (int, error)
	// BankKind reports whether the bank holds test or survey-only questions.
	BankKind(ctx context.Context, bankID string) (Kind, error)
}

// OrgProvider answers membership/role/card questions about an organization.
type OrgProvider interface {
	IsMember(ctx context.Context, orgID, actorID string) (bool, error)
	HasRole(ctx context.Context, orgID, actorID, roleID string) (bool, error)
	HoldsCard(ctx context.Context, actorID, cardTemplateID string) (bool, error)
}

// Gradebook is the external final-score record for a lesson/actor pairing.
type Gradebook interface {
	GetOrCreate(ctx context.Context, actorID, lessonID string) (string, error)
}

// Events receives fire-and-forget notifications. Failures are logged by
// implementations, never surfaced to the mutating call.
type Events interface {
	Append(ctx context.Context, typ, key, dataJSON string) error
}

// AttemptFilter narrows attempt queries. Zero values mean "no filter".
type AttemptFilter struct {
	ActorID        string
	Status         AttemptStatus
	IncludeDeleted bool
}

// Store is the persistence port of the engine. WithTx runs fn against a
// transactional view: every change fn makes applies on nil return and is
// rolled back on error.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	CreateQuiz(ctx context.Context, q *Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	UpdateQuiz(ctx context.Context, q *Quiz) error
	DeleteQuiz(ctx context.Context, id string, at time.Time) error

	AddRule(ctx context.Context, r *Rule) error
	Rules(ctx context.Context, quizID string) ([]Rule, error)
	UpdateRulePoints(ctx context.Context, quizID, ruleID string, points int) error
	DeleteRule(ctx context.Context, quizID, ruleID string) error
	DeleteAllRules(ctx context.Context, quizID string) error

	ScaleRows(ctx context.Context, quizID string) ([]ScaleRow, error)
	ScaleRowCount(ctx context.Context, quizID string) (int, error)
	DeleteScaleRows(ctx context.Context, quizID string) error
	InsertScaleRows(ctx context.Context, quizID string, rows []ScaleRow) error

	CreateAttempt(ctx context.Context, a *Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	UpdateAttempt(ctx context.Context, a *Attempt) error
	Attempts(ctx context.Context, quizID string, f AttemptFilter) ([]Attempt, error)
	CountAttempts(ctx context.Context, quizID string, f AttemptFilter) (int, error)
	SoftDeleteAttempts(ctx context.Context, quizID string, actorIDs []string, at time.Time) error

	InsertSelectedQuestions(ctx context.Context, qs []SelectedQuestion) error
	SelectedQuestions(ctx context.Context, attemptID string) ([]SelectedQuestion, error)
	UpdateSelectedQuestion(ctx context.Context, sq *SelectedQuestion) error

	AddGrant(ctx context.Context, g *AccessGrant) error
	Grants(ctx context.Context, quizID string) ([]AccessGrant, error)
	RevokeGrant(ctx context.Context, quizID, grantID string, at time.Time) error
	DeleteAllGrants(ctx context.Context, quizID string) error
	AddGrantUser(ctx context.Context, grantID, userID string) error
	RemoveGrantUser(ctx context.Context, grantID, userID string) error
}
