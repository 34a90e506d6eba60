package quiz

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores for missing rows.
var ErrNotFound = errors.New("not found")

// ConflictError reports that a question or bank is already claimed by an
// existing rule of the same quiz, directly or via bank membership.
type ConflictError struct {
	RuleID     string // the rule that already covers the item
	QuestionID string
	BankID     string
}

func (e *ConflictError) Error() string {
	if e.BankID != "" {
		return fmt.Sprintf("bank %s already covered by rule %s", e.BankID, e.RuleID)
	}
	return fmt.Sprintf("question %s already covered by rule %s", e.QuestionID, e.RuleID)
}

// TypeMismatchError reports a survey-only question or bank being added to a
// test-kind quiz.
type TypeMismatchError struct {
	QuizKind Kind
	ItemKind Kind
	ItemID   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("item %s has kind %s, quiz has kind %s", e.ItemID, e.ItemKind, e.QuizKind)
}

// RequestedCountExceedsBankError reports a random rule asking for more
// questions than the bank holds at validation time.
type RequestedCountExceedsBankError struct {
	BankID    string
	Requested int
	Available int
}

func (e *RequestedCountExceedsBankError) Error() string {
	return fmt.Sprintf("bank %s holds %d questions, %d requested", e.BankID, e.Available, e.Requested)
}

// InsufficientBankSizeError reports a bank that shrank below a random rule's
// count between rule creation and attempt generation.
type InsufficientBankSizeError struct {
	BankID    string
	Requested int
	Available int
}

func (e *InsufficientBankSizeError) Error() string {
	return fmt.Sprintf("bank %s holds %d eligible questions, %d needed", e.BankID, e.Available, e.Requested)
}

// ScaleValidationError pinpoints the first row of a submitted grading scale
// that breaks the contiguity/ordering invariants.
type ScaleValidationError struct {
	RowIndex int
	Reason   string
}

func (e *ScaleValidationError) Error() string {
	return fmt.Sprintf("scale row %d: %s", e.RowIndex, e.Reason)
}

// Attempt-creation failures.
var (
	ErrOutsideAvailabilityWindow = errors.New("quiz is not available at this time")
	ErrAttemptQuotaExceeded      = errors.New("attempt quota exceeded")
	ErrActiveAttemptExists       = errors.New("an unfinished attempt already exists")
	ErrNotEligible               = errors.New("actor is not eligible for this quiz")
	ErrPasswordRequired          = errors.New("quiz password missing or wrong")
	ErrQuizHasAttempts           = errors.New("quiz has attempts and cannot be deleted")
	ErrAttemptFinished           = errors.New("attempt already finished")
)

// AttemptCreationFailedError wraps whatever sank an attempt creation after
// the checks passed (empty generation, store failure). The partial attempt
// is rolled back.
type AttemptCreationFailedError struct {
	QuizID  string
	ActorID string
	Cause   error
}

func (e *AttemptCreationFailedError) Error() string {
	return fmt.Sprintf("create attempt for actor %s on quiz %s: %v", e.ActorID, e.QuizID, e.Cause)
}

func (e *AttemptCreationFailedError) Unwrap() error { return e.Cause }

// PersistenceError wraps a store failure. The engine never retries these;
// retry policy belongs to the caller.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Cause: err}
}
