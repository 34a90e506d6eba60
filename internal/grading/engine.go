// Package grading decides whether a recorded response earns a question's
// points. Strategies are routed by question type; unknown types never earn.
package grading

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Q is the minimal view of a question needed for checking a response.
type Q struct {
	Type      string
	AnswerKey []string
}

// Strategy checks a single question type.
type Strategy interface {
	Correct(q Q, response []string) (bool, error)
}

// Checker routes by question type to the right Strategy.
type Checker interface {
	Correct(q Q, response []string) (bool, error)
}

type defaultChecker struct {
	strategies map[string]Strategy
}

func (c *defaultChecker) Correct(q Q, response []string) (bool, error) {
	s, ok := c.strategies[q.Type]
	if !ok {
		return false, nil
	}
	return s.Correct(q, response)
}

type Option func(*config)

type config struct {
	MaxEditDistance int // fuzzy tolerance for text answers
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }

// NewChecker installs the built-in strategies.
func NewChecker(opts ...Option) Checker {
	cfg := &config{MaxEditDistance: 1}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultChecker{
		strategies: map[string]Strategy{
			"choice_single": singleChoice{},
			"true_false":    singleChoice{},
			"choice_multi":  multiChoice{},
			"text":          textAnswer{maxEdit: cfg.MaxEditDistance},
			"numeric":       numericAnswer{},
		},
	}
}

type singleChoice struct{}

func (singleChoice) Correct(q Q, response []string) (bool, error) {
	if len(response) != 1 {
		return false, errors.New("exactly one choice expected")
	}
	for _, k := range q.AnswerKey {
		if response[0] == k {
			return true, nil
		}
	}
	return false, nil
}

type multiChoice struct{}

func (multiChoice) Correct(q Q, response []string) (bool, error) {
	if len(response) != len(q.AnswerKey) {
		return false, nil
	}
	want := make(map[string]int, len(q.AnswerKey))
	for _, k := range q.AnswerKey {
		want[k]++
	}
	for _, r := range response {
		want[r]--
	}
	for _, n := range want {
		if n != 0 {
			return false, nil
		}
	}
	return true, nil
}

type textAnswer struct{ maxEdit int }

func (s textAnswer) Correct(q Q, response []string) (bool, error) {
	if len(response) != 1 {
		return false, errors.New("exactly one answer expected")
	}
	got := normalize(response[0])
	for _, k := range q.AnswerKey {
		want := normalize(k)
		if want == got {
			return true, nil
		}
		if s.maxEdit > 0 && editDistance(want, got) <= s.maxEdit {
			return true, nil
		}
	}
	return false, nil
}

// numericAnswer matches against AnswerKey[0], with an optional absolute
// tolerance given as "tol=X" in AnswerKey[1].
type numericAnswer struct{}

func (numericAnswer) Correct(q Q, response []string) (bool, error) {
	if len(response) != 1 {
		return false, errors.New("exactly one answer expected")
	}
	if len(q.AnswerKey) == 0 {
		return false, nil
	}
	if response[0] == q.AnswerKey[0] {
		return true, nil
	}
	got, err1 := strconv.ParseFloat(strings.TrimSpace(response[0]), 64)
	want, err2 := strconv.ParseFloat(strings.TrimSpace(q.AnswerKey[0]), 64)
	if err1 != nil || err2 != nil {
		return false, nil
	}
	tol := 0.0
	if len(q.AnswerKey) > 1 && strings.HasPrefix(q.AnswerKey[1], "tol=") {
		if v, err := strconv.ParseFloat(strings.TrimPrefix(q.AnswerKey[1], "tol="), 64); err == nil {
			tol = v
		}
	}
	return math.Abs(got-want) <= tol, nil
}
