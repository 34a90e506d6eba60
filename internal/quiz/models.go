package quiz

import "time"

// Kind discriminates scored tests from unscored surveys.
type Kind string

const (
	KindTest   Kind = "test"
	KindSurvey Kind = "survey"
)

// EligibilityPolicy controls who may start a survey-kind quiz.
type EligibilityPolicy string

const (
	PolicyAll        EligibilityPolicy = "all"
	PolicyOrgMembers EligibilityPolicy = "members-of-organization"
	PolicyOrgRole    EligibilityPolicy = "members-with-role"
)

// AttachRef is the polymorphic "attached to" target of a quiz, e.g. a lesson
// element or an organization. Kind selects the collaborator that can resolve
// RefID.
type AttachRef struct {
	Kind  string `json:"kind"`
	RefID string `json:"ref_id"`
}

const (
	AttachLesson       = "lesson"
	AttachOrganization = "organization"
)

type Quiz struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`

	AvailableFrom  time.Time `json:"available_from"`
	AvailableUntil time.Time `json:"available_until"`

	LeadTimeMinutes   int  `json:"lead_time_minutes"`
	PassingScore      int  `json:"passing_score"`
	MaxAttempts       int  `json:"max_attempts"`
	AllowAnswerChange bool `json:"allow_answer_change"`
	ShowResultDetail  bool `json:"show_result_detail"`

	Protected    bool   `json:"protected"`
	PasswordHash string `json:"-"`

	Policy       EligibilityPolicy `json:"policy"`
	PolicyRoleID string            `json:"policy_role_id,omitempty"`

	AttachedTo AttachRef `json:"attached_to"`

	CreatorID string `json:"creator_id"`
	EditorID  string `json:"editor_id"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// RuleVariant tags the three question-selection rule shapes.
type RuleVariant string

const (
	RuleSpecific       RuleVariant = "specific-question"
	RuleAllFromBank    RuleVariant = "all-from-bank"
	RuleRandomFromBank RuleVariant = "random-from-bank"
)

// Rule is one declarative question-selection instruction. Exactly one of
// QuestionID or BankID is set depending on the variant; Count is meaningful
// only for RuleRandomFromBank.
type Rule struct {
	ID       string      `json:"id"`
	QuizID   string      `json:"quiz_id"`
	Variant  RuleVariant `json:"variant"`
	Position int         `json:"position"`

	QuestionID string `json:"question_id,omitempty"`
	BankID     string `json:"bank_id,omitempty"`
	Points     int    `json:"points"`
	Count      int    `json:"count,omitempty"`
}

// ScaleRow is one band of a quiz's grading scale. A full scale partitions
// [0, maxScore] into contiguous bands with grades counting up from 1.
type ScaleRow struct {
	Grade      int `json:"grade"`
	StartScore int `json:"start_score"`
	EndScore   int `json:"end_score"`
}

// AttemptStatus values. SUCCESS and FAILED are terminal.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "IN_PROGRESS"
	StatusSuccess    AttemptStatus = "SUCCESS"
	StatusFailed     AttemptStatus = "FAILED"
)

// Terminal reports whether s permits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type Attempt struct {
	ID      string        `json:"id"`
	QuizID  string        `json:"quiz_id"`
	ActorID string        `json:"actor_id"`
	Status  AttemptStatus `json:"status"`

	// StartTime and FinishDeadline are nil for a delayed-start attempt that
	// has not been activated yet.
	StartTime      *time.Time `json:"start_time,omitempty"`
	FinishDeadline *time.Time `json:"finish_deadline,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`

	Score        int        `json:"score"`
	Grade        int        `json:"grade,omitempty"`
	GradebookRef string     `json:"gradebook_ref,omitempty"`
	DeletedAt    *time.Time `json:"-"`
}

// Duration returns the recorded time an attempt took, or false if the
// attempt never finished (or never started).
func (a Attempt) Duration() (time.Duration, bool) {
	if a.StartTime == nil || a.FinishedAt == nil {
		return 0, false
	}
	return a.FinishedAt.Sub(*a.StartTime), true
}

// SelectedQuestion is one entry of an attempt's materialized question list.
// The list is fixed at generation time; later bank edits do not affect it.
type SelectedQuestion struct {
	ID         string `json:"id"`
	AttemptID  string `json:"attempt_id"`
	QuestionID string `json:"question_id"`
	Points     int    `json:"points"`
	Position   int    `json:"position"`

	Response []string `json:"response,omitempty"`
	Earned   int      `json:"earned"`
	Answered bool     `json:"answered"`
}

// GrantVariant tags the access-grant shapes. Grants are additive: an actor
// may start/view when covered by any active grant.
type GrantVariant string

const (
	GrantOrgAll    GrantVariant = "org-all"
	GrantOrgRole   GrantVariant = "org-role"
	GrantOrgCard   GrantVariant = "org-card"
	GrantOrgSelect GrantVariant = "org-select"
	GrantUsers     GrantVariant = "users"
	GrantFilter    GrantVariant = "filter"
)

type AccessGrant struct {
	ID      string       `json:"id"`
	QuizID  string       `json:"quiz_id"`
	Variant GrantVariant `json:"variant"`

	OrgID          string `json:"org_id,omitempty"`
	RoleID         string `json:"role_id,omitempty"`
	CardTemplateID string `json:"card_template_id,omitempty"`
	SeatCount      int    `json:"seat_count,omitempty"`
	FilterJSON     string `json:"filter,omitempty"`

	// UserIDs holds explicit users for the users variant and the per-grant
	// selections of the org-select / filter variants.
	UserIDs []string `json:"user_ids,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the grant still widens access.
func (g AccessGrant) Active() bool { return g.RevokedAt == nil }

// Question is the read-side view of a bank question this engine needs.
type Question struct {
	ID     string `json:"id"`
	BankID string `json:"bank_id,omitempty"`
	Kind   Kind   `json:"kind"` // survey-only questions cannot enter a test

	Type      string   `json:"type"` // choice_single, choice_multi, text, numeric
	AnswerKey []string `json:"-"`
}
