package quiz

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// Generator expands a quiz's rules into the concrete question list of one
// attempt. The result is persisted with the attempt and never re-evaluated,
// so an attempt stays stable even if a bank changes afterwards.
type Generator struct {
	banks BankRepo
	rnd   *rand.Rand
}

// NewGenerator builds a generator. rnd may be nil, in which case a
// non-deterministic source is used; tests pass a seeded one.
func NewGenerator(banks BankRepo, rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Generator{banks: banks, rnd: rnd}
}

// Generate emits the selected questions for attemptID, rule by rule in
// stored order. Random rules sample without replacement and fail with
// InsufficientBankSizeError when the bank shrank below the configured count.
func (g *Generator) Generate(ctx context.Context, attemptID string, rules []Rule) ([]SelectedQuestion, error) {
	out := make([]SelectedQuestion, 0, len(rules))
	pos := 0
	add := func(questionID string, points int) {
		out = append(out, SelectedQuestion{
			ID:         uuid.NewString(),
			AttemptID:  attemptID,
			QuestionID: questionID,
			Points:     points,
			Position:   pos,
		})
		pos++
	}

	for _, r := range rules {
		switch r.Variant {
		case RuleSpecific:
			add(r.QuestionID, r.Points)

		case RuleAllFromBank:
			members, err := g.banks.QuestionsInBank(ctx, r.BankID)
			if err != nil {
				return nil, persistErr("bank members", err)
			}
			for _, m := range members {
				add(m.ID, r.Points)
			}

		case RuleRandomFromBank:
			members, err := g.banks.QuestionsInBank(ctx, r.BankID)
			if err != nil {
				return nil, persistErr("bank members", err)
			}
			if len(members) < r.Count {
				return nil, &InsufficientBankSizeError{BankID: r.BankID, Requested: r.Count, Available: len(members)}
			}
			for _, i := range g.rnd.Perm(len(members))[:r.Count] {
				add(members[i].ID, r.Points)
			}

		default:
			return nil, fmt.Errorf("unknown rule variant %q", r.Variant)
		}
	}
	return out, nil
}
