// Package platform holds SQL-backed implementations of the engine's
// collaborator ports. In a full deployment these would be remote services;
// here they read the shared database directly.
package platform

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/eduforge/assess/internal/quiz"
)

type Banks struct{ db *sql.DB }

func NewBanks(db *sql.DB) *Banks { return &Banks{db: db} }

func (b *Banks) GetQuestion(ctx context.Context, id string) (quiz.Question, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT q.id, q.bank_id, bk.kind, q.typ, q.answer_key_json
		FROM bank_questions q JOIN question_banks bk ON bk.id = q.bank_id
		WHERE q.id = $1`, id)
	return scanQuestion(row)
}

func (b *Banks) QuestionsInBank(ctx context.Context, bankID string) ([]quiz.Question, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT q.id, q.bank_id, bk.kind, q.typ, q.answer_key_json
		FROM bank_questions q JOIN question_banks bk ON bk.id = q.bank_id
		WHERE q.bank_id = $1 AND q.active = 1
		ORDER BY q.ordinal, q.id`, bankID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quiz.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (b *Banks) ActiveCountInBank(ctx context.Context, bankID string) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_questions WHERE bank_id = $1 AND active = 1`, bankID).Scan(&n)
	return n, err
}

func (b *Banks) BankKind(ctx context.Context, bankID string) (quiz.Kind, error) {
	var kind string
	err := b.db.QueryRowContext(ctx,
		`SELECT kind FROM question_banks WHERE id = $1`, bankID).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", quiz.ErrNotFound
	}
	return quiz.Kind(kind), err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanQuestion(r rowScanner) (quiz.Question, error) {
	var q quiz.Question
	var kind, keyJSON string
	if err := r.Scan(&q.ID, &q.BankID, &kind, &q.Type, &keyJSON); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Question{}, quiz.ErrNotFound
		}
		return quiz.Question{}, err
	}
	q.Kind = quiz.Kind(kind)
	if keyJSON != "" {
		if err := json.Unmarshal([]byte(keyJSON), &q.AnswerKey); err != nil {
			return quiz.Question{}, err
		}
	}
	return q, nil
}
