package quiz

import (
	"context"
	"fmt"
)

// RuleSet validates additions against a quiz's existing rules. Overlap is
// checked transitively: a specific-question rule claims its question, a bank
// rule claims the bank and every question currently in it, so both sides are
// expanded to concrete question ids before comparison.
type RuleSet struct {
	banks BankRepo
}

func NewRuleSet(banks BankRepo) *RuleSet {
	return &RuleSet{banks: banks}
}

// BankMode selects between the two bank rule variants at validation time.
type BankMode int

const (
	BankAll BankMode = iota
	BankRandom
)

// ValidateAddSpecific checks that questionID may become a specific-question
// rule on the quiz.
func (rs *RuleSet) ValidateAddSpecific(ctx context.Context, q Quiz, existing []Rule, questionID string) error {
	question, err := rs.banks.GetQuestion(ctx, questionID)
	if err != nil {
		return persistErr("get question", err)
	}
	if q.Kind == KindTest && question.Kind == KindSurvey {
		return &TypeMismatchError{QuizKind: q.Kind, ItemKind: question.Kind, ItemID: questionID}
	}
	for _, r := range existing {
		covered, err := rs.ruleCoversQuestion(ctx, r, questionID)
		if err != nil {
			return err
		}
		if covered {
			return &ConflictError{RuleID: r.ID, QuestionID: questionID}
		}
	}
	return nil
}

// ValidateAddBank checks that bankID may become an all-from-bank or
// random-from-bank rule on the quiz. count is only inspected for BankRandom.
func (rs *RuleSet) ValidateAddBank(ctx context.Context, q Quiz, existing []Rule, bankID string, mode BankMode, count int) error {
	kind, err := rs.banks.BankKind(ctx, bankID)
	if err != nil {
		return persistErr("bank kind", err)
	}
	if q.Kind == KindTest && kind == KindSurvey {
		return &TypeMismatchError{QuizKind: q.Kind, ItemKind: kind, ItemID: bankID}
	}

	members, err := rs.banks.QuestionsInBank(ctx, bankID)
	if err != nil {
		return persistErr("bank members", err)
	}
	memberIDs := make(map[string]bool, len(members))
	for _, m := range members {
		memberIDs[m.ID] = true
	}

	for _, r := range existing {
		switch r.Variant {
		case RuleAllFromBank, RuleRandomFromBank:
			if r.BankID == bankID {
				return &ConflictError{RuleID: r.ID, BankID: bankID}
			}
		case RuleSpecific:
			// A specific rule on any member question blocks the whole bank.
			if memberIDs[r.QuestionID] {
				return &ConflictError{RuleID: r.ID, BankID: bankID}
			}
		default:
			return fmt.Errorf("unknown rule variant %q", r.Variant)
		}
	}

	if mode == BankRandom {
		available, err := rs.banks.ActiveCountInBank(ctx, bankID)
		if err != nil {
			return persistErr("bank count", err)
		}
		if count > available {
			return &RequestedCountExceedsBankError{BankID: bankID, Requested: count, Available: available}
		}
	}
	return nil
}

// ruleCoversQuestion reports whether r claims questionID, directly or via
// the membership of a bank it targets.
func (rs *RuleSet) ruleCoversQuestion(ctx context.Context, r Rule, questionID string) (bool, error) {
	switch r.Variant {
	case RuleSpecific:
		return r.QuestionID == questionID, nil
	case RuleAllFromBank, RuleRandomFromBank:
		members, err := rs.banks.QuestionsInBank(ctx, r.BankID)
		if err != nil {
			return false, persistErr("bank members", err)
		}
		for _, m := range members {
			if m.ID == questionID {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown rule variant %q", r.Variant)
	}
}

// CountQuestions sums the number of questions an attempt generated from
// rules would hold: 1 per specific rule, bank size for all-from-bank, the
// configured count for random-from-bank.
func CountQuestions(ctx context.Context, banks BankRepo, rules []Rule) (int, error) {
	total := 0
	for _, r := range rules {
		switch r.Variant {
		case RuleSpecific:
			total++
		case RuleAllFromBank:
			n, err := banks.ActiveCountInBank(ctx, r.BankID)
			if err != nil {
				return 0, persistErr("bank count", err)
			}
			total += n
		case RuleRandomFromBank:
			total += r.Count
		default:
			return 0, fmt.Errorf("unknown rule variant %q", r.Variant)
		}
	}
	return total, nil
}

// MaxScore sums every rule's total point value: Points for specific rules,
// Points per question times the question count for bank rules.
func MaxScore(ctx context.Context, banks BankRepo, rules []Rule) (int, error) {
	total := 0
	for _, r := range rules {
		switch r.Variant {
		case RuleSpecific:
			total += r.Points
		case RuleAllFromBank:
			n, err := banks.ActiveCountInBank(ctx, r.BankID)
			if err != nil {
				return 0, persistErr("bank count", err)
			}
			total += r.Points * n
		case RuleRandomFromBank:
			total += r.Points * r.Count
		default:
			return 0, fmt.Errorf("unknown rule variant %q", r.Variant)
		}
	}
	return total, nil
}
