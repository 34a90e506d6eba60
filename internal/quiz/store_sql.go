package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same statement
// code serves plain calls and transactional ones.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists the engine on sqlite or postgres through database/sql.
type SQLStore struct {
	db *sql.DB
	q  querier
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

// WithTx runs fn against a transactional store. Nested calls reuse the
// ongoing transaction.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&SQLStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func unix(t time.Time) int64 { return t.Unix() }

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

/* ---- quizzes ---- */

func (s *SQLStore) CreateQuiz(ctx context.Context, q *Quiz) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO quizzes
		(id,kind,title,attached_kind,attached_ref,available_from,available_until,
		 lead_time_minutes,passing_score,max_attempts,allow_answer_change,
		 show_result_detail,protected,password_hash,policy,policy_role_id,
		 creator,editor,created_at,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		q.ID, string(q.Kind), q.Title, q.AttachedTo.Kind, q.AttachedTo.RefID,
		unix(q.AvailableFrom), unix(q.AvailableUntil),
		q.LeadTimeMinutes, q.PassingScore, q.MaxAttempts, b2i(q.AllowAnswerChange),
		b2i(q.ShowResultDetail), b2i(q.Protected), q.PasswordHash, string(q.Policy), q.PolicyRoleID,
		q.CreatorID, q.EditorID, unix(q.CreatedAt), unix(q.UpdatedAt))
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.q.QueryRowContext(ctx, `SELECT id,kind,title,attached_kind,attached_ref,
		available_from,available_until,lead_time_minutes,passing_score,max_attempts,
		allow_answer_change,show_result_detail,protected,password_hash,policy,
		policy_role_id,creator,editor,created_at,updated_at
		FROM quizzes WHERE id=$1 AND deleted_at IS NULL`, id)
	var q Quiz
	var kind, policy string
	var from, until, created, updated int64
	var allowChange, showDetail, protected int
	err := row.Scan(&q.ID, &kind, &q.Title, &q.AttachedTo.Kind, &q.AttachedTo.RefID,
		&from, &until, &q.LeadTimeMinutes, &q.PassingScore, &q.MaxAttempts,
		&allowChange, &showDetail, &protected, &q.PasswordHash, &policy,
		&q.PolicyRoleID, &q.CreatorID, &q.EditorID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrNotFound
	}
	if err != nil {
		return Quiz{}, err
	}
	q.Kind = Kind(kind)
	q.Policy = EligibilityPolicy(policy)
	q.AvailableFrom = time.Unix(from, 0)
	q.AvailableUntil = time.Unix(until, 0)
	q.AllowAnswerChange = allowChange != 0
	q.ShowResultDetail = showDetail != 0
	q.Protected = protected != 0
	q.CreatedAt = time.Unix(created, 0)
	q.UpdatedAt = time.Unix(updated, 0)
	return q, nil
}

func (s *SQLStore) UpdateQuiz(ctx context.Context, q *Quiz) error {
	res, err := s.q.ExecContext(ctx, `UPDATE quizzes SET
		kind=$1,title=$2,attached_kind=$3,attached_ref=$4,available_from=$5,
		available_until=$6,lead_time_minutes=$7,passing_score=$8,max_attempts=$9,
		allow_answer_change=$10,show_result_detail=$11,protected=$12,
		password_hash=$13,policy=$14,policy_role_id=$15,editor=$16,updated_at=$17
		WHERE id=$18 AND deleted_at IS NULL`,
		string(q.Kind), q.Title, q.AttachedTo.Kind, q.AttachedTo.RefID, unix(q.AvailableFrom),
		unix(q.AvailableUntil), q.LeadTimeMinutes, q.PassingScore, q.MaxAttempts,
		b2i(q.AllowAnswerChange), b2i(q.ShowResultDetail), b2i(q.Protected),
		q.PasswordHash, string(q.Policy), q.PolicyRoleID, q.EditorID, unix(q.UpdatedAt), q.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) DeleteQuiz(ctx context.Context, id string, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quizzes SET deleted_at=$1 WHERE id=$2 AND deleted_at IS NULL`, unix(at), id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

/* ---- rules ---- */

func (s *SQLStore) AddRule(ctx context.Context, r *Rule) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO quiz_rules
		(id,quiz_id,variant,ordinal,question_id,bank_id,points,question_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.QuizID, string(r.Variant), r.Position, r.QuestionID, r.BankID, r.Points, r.Count)
	return err
}

func (s *SQLStore) Rules(ctx context.Context, quizID string) ([]Rule, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id,quiz_id,variant,ordinal,question_id,bank_id,points,question_count
		FROM quiz_rules WHERE quiz_id=$1 ORDER BY ordinal`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		var r Rule
		var variant string
		if err := rows.Scan(&r.ID, &r.QuizID, &variant, &r.Position, &r.QuestionID, &r.BankID, &r.Points, &r.Count); err != nil {
			return nil, err
		}
		r.Variant = RuleVariant(variant)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateRulePoints(ctx context.Context, quizID, ruleID string, points int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quiz_rules SET points=$1 WHERE id=$2 AND quiz_id=$3`, points, ruleID, quizID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) DeleteRule(ctx context.Context, quizID, ruleID string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM quiz_rules WHERE id=$1 AND quiz_id=$2`, ruleID, quizID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) DeleteAllRules(ctx context.Context, quizID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM quiz_rules WHERE quiz_id=$1`, quizID)
	return err
}

/* ---- grading scale ---- */

func (s *SQLStore) ScaleRows(ctx context.Context, quizID string) ([]ScaleRow, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT grade,start_score,end_score
		FROM quiz_grading_scales WHERE quiz_id=$1 ORDER BY grade`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScaleRow
	for rows.Next() {
		var r ScaleRow
		if err := rows.Scan(&r.Grade, &r.StartScore, &r.EndScore); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ScaleRowCount(ctx context.Context, quizID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quiz_grading_scales WHERE quiz_id=$1`, quizID).Scan(&n)
	return n, err
}

func (s *SQLStore) DeleteScaleRows(ctx context.Context, quizID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM quiz_grading_scales WHERE quiz_id=$1`, quizID)
	return err
}

func (s *SQLStore) InsertScaleRows(ctx context.Context, quizID string, rows []ScaleRow) error {
	for _, r := range rows {
		if _, err := s.q.ExecContext(ctx, `INSERT INTO quiz_grading_scales
			(quiz_id,grade,start_score,end_score) VALUES ($1,$2,$3,$4)`,
			quizID, r.Grade, r.StartScore, r.EndScore); err != nil {
			return err
		}
	}
	return nil
}

/* ---- attempts ---- */

func (s *SQLStore) CreateAttempt(ctx context.Context, a *Attempt) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO quiz_attempts
		(id,quiz_id,actor_id,status,start_time,finish_deadline,finished_at,score,grade,gradebook_ref)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.QuizID, a.ActorID, string(a.Status),
		unixPtr(a.StartTime), unixPtr(a.FinishDeadline), unixPtr(a.FinishedAt),
		a.Score, a.Grade, a.GradebookRef)
	if err != nil && isUniqueViolation(err) {
		return ErrActiveAttemptExists
	}
	return err
}

// isUniqueViolation matches the unique-index errors of both drivers without
// importing driver types here.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

func (s *SQLStore) scanAttempt(row interface{ Scan(...any) error }) (Attempt, error) {
	var a Attempt
	var status string
	var start, deadline, finished, deleted sql.NullInt64
	err := row.Scan(&a.ID, &a.QuizID, &a.ActorID, &status, &start, &deadline,
		&finished, &a.Score, &a.Grade, &a.GradebookRef, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	a.Status = AttemptStatus(status)
	a.StartTime = timePtr(start)
	a.FinishDeadline = timePtr(deadline)
	a.FinishedAt = timePtr(finished)
	a.DeletedAt = timePtr(deleted)
	return a, nil
}

const attemptCols = `id,quiz_id,actor_id,status,start_time,finish_deadline,finished_at,score,grade,gradebook_ref,deleted_at`

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM quiz_attempts WHERE id=$1 AND deleted_at IS NULL`, id)
	return s.scanAttempt(row)
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a *Attempt) error {
	res, err := s.q.ExecContext(ctx, `UPDATE quiz_attempts SET
		status=$1,start_time=$2,finish_deadline=$3,finished_at=$4,score=$5,grade=$6,gradebook_ref=$7
		WHERE id=$8`,
		string(a.Status), unixPtr(a.StartTime), unixPtr(a.FinishDeadline),
		unixPtr(a.FinishedAt), a.Score, a.Grade, a.GradebookRef, a.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func attemptWhere(f AttemptFilter) (string, []any) {
	where := `quiz_id=$1`
	args := []any{}
	n := 1
	if !f.IncludeDeleted {
		where += ` AND deleted_at IS NULL`
	}
	if f.ActorID != "" {
		n++
		where += fmt.Sprintf(` AND actor_id=$%d`, n)
		args = append(args, f.ActorID)
	}
	if f.Status != "" {
		n++
		where += fmt.Sprintf(` AND status=$%d`, n)
		args = append(args, string(f.Status))
	}
	return where, args
}

func (s *SQLStore) Attempts(ctx context.Context, quizID string, f AttemptFilter) ([]Attempt, error) {
	where, extra := attemptWhere(f)
	args := append([]any{quizID}, extra...)
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+attemptCols+` FROM quiz_attempts WHERE `+where+` ORDER BY start_time, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := s.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountAttempts(ctx context.Context, quizID string, f AttemptFilter) (int, error) {
	where, extra := attemptWhere(f)
	args := append([]any{quizID}, extra...)
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE `+where, args...).Scan(&n)
	return n, err
}

func (s *SQLStore) SoftDeleteAttempts(ctx context.Context, quizID string, actorIDs []string, at time.Time) error {
	if len(actorIDs) == 0 {
		return nil
	}
	ph := make([]string, len(actorIDs))
	args := []any{unix(at), quizID}
	for i, id := range actorIDs {
		ph[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, id)
	}
	_, err := s.q.ExecContext(ctx, `UPDATE quiz_attempts SET deleted_at=$1
		WHERE quiz_id=$2 AND deleted_at IS NULL AND actor_id IN (`+strings.Join(ph, ",")+`)`, args...)
	return err
}

/* ---- selected questions ---- */

func (s *SQLStore) InsertSelectedQuestions(ctx context.Context, qs []SelectedQuestion) error {
	for _, sq := range qs {
		resp, err := json.Marshal(sq.Response)
		if err != nil {
			return err
		}
		if _, err := s.q.ExecContext(ctx, `INSERT INTO attempt_questions
			(id,attempt_id,question_id,points,ordinal,response_json,earned,answered)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			sq.ID, sq.AttemptID, sq.QuestionID, sq.Points, sq.Position,
			string(resp), sq.Earned, b2i(sq.Answered)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) SelectedQuestions(ctx context.Context, attemptID string) ([]SelectedQuestion, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id,attempt_id,question_id,points,ordinal,response_json,earned,answered
		FROM attempt_questions WHERE attempt_id=$1 ORDER BY ordinal`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SelectedQuestion
	for rows.Next() {
		var sq SelectedQuestion
		var resp string
		var answered int
		if err := rows.Scan(&sq.ID, &sq.AttemptID, &sq.QuestionID, &sq.Points, &sq.Position, &resp, &sq.Earned, &answered); err != nil {
			return nil, err
		}
		if resp != "" {
			if err := json.Unmarshal([]byte(resp), &sq.Response); err != nil {
				sq.Response = nil
			}
		}
		sq.Answered = answered != 0
		out = append(out, sq)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateSelectedQuestion(ctx context.Context, sq *SelectedQuestion) error {
	resp, err := json.Marshal(sq.Response)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `UPDATE attempt_questions
		SET response_json=$1,earned=$2,answered=$3 WHERE id=$4`,
		string(resp), sq.Earned, b2i(sq.Answered), sq.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

/* ---- access grants ---- */

func (s *SQLStore) AddGrant(ctx context.Context, g *AccessGrant) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO quiz_access_grants
		(id,quiz_id,variant,org_id,role_id,card_template_id,seat_count,filter_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, g.QuizID, string(g.Variant), g.OrgID, g.RoleID, g.CardTemplateID,
		g.SeatCount, g.FilterJSON, unix(g.CreatedAt))
	if err != nil {
		return err
	}
	for _, uid := range g.UserIDs {
		if err := s.AddGrantUser(ctx, g.ID, uid); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Grants(ctx context.Context, quizID string) ([]AccessGrant, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id,quiz_id,variant,org_id,role_id,card_template_id,seat_count,filter_json,created_at,revoked_at
		FROM quiz_access_grants WHERE quiz_id=$1 ORDER BY created_at, id`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccessGrant
	for rows.Next() {
		var g AccessGrant
		var variant string
		var created int64
		var revoked sql.NullInt64
		if err := rows.Scan(&g.ID, &g.QuizID, &variant, &g.OrgID, &g.RoleID,
			&g.CardTemplateID, &g.SeatCount, &g.FilterJSON, &created, &revoked); err != nil {
			return nil, err
		}
		g.Variant = GrantVariant(variant)
		g.CreatedAt = time.Unix(created, 0)
		g.RevokedAt = timePtr(revoked)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		users, err := s.grantUsers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].UserIDs = users
	}
	return out, nil
}

func (s *SQLStore) grantUsers(ctx context.Context, grantID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT user_id FROM quiz_grant_users WHERE grant_id=$1 ORDER BY user_id`, grantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) RevokeGrant(ctx context.Context, quizID, grantID string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `UPDATE quiz_access_grants SET revoked_at=$1
		WHERE id=$2 AND quiz_id=$3 AND revoked_at IS NULL`, unix(at), grantID, quizID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *SQLStore) DeleteAllGrants(ctx context.Context, quizID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM quiz_grant_users
		WHERE grant_id IN (SELECT id FROM quiz_access_grants WHERE quiz_id=$1)`, quizID)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `DELETE FROM quiz_access_grants WHERE quiz_id=$1`, quizID)
	return err
}

func (s *SQLStore) AddGrantUser(ctx context.Context, grantID, userID string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO quiz_grant_users (grant_id,user_id) VALUES ($1,$2)`, grantID, userID)
	return err
}

func (s *SQLStore) RemoveGrantUser(ctx context.Context, grantID, userID string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM quiz_grant_users WHERE grant_id=$1 AND user_id=$2`, grantID, userID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}
