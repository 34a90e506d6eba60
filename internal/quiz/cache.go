package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/eduforge/assess/internal/cache"
)

// cacheTTL is effectively "until invalidated"; entries only disappear when a
// mutation forgets them.
const cacheTTL = 365 * 24 * time.Hour

// Per-quiz derived-value keys. Any mutation of a quiz, its rules or its
// scales must forget all of them before returning; see CachedValues.Forget.
func keyQuestionCount(quizID string) string { return "quiz_" + quizID + "_question_count" }
func keyMaxScore(quizID string) string      { return "quiz_" + quizID + "_max_score" }
func keyAttemptCount(quizID string) string  { return "quiz_" + quizID + "_attempt_count" }
func keyScaleRowCount(quizID string) string { return "quiz_" + quizID + "_scale_row_count" }
func keyScaleRows(quizID string) string     { return "quiz_" + quizID + "_scale_rows" }

// CachedValues memoizes the expensive per-quiz aggregates behind the cache
// port. Reads go cache-first and recompute-and-store on miss; a cache
// backend failure falls through to the computation rather than failing the
// read.
type CachedValues struct {
	c cache.Cache
}

func NewCachedValues(c cache.Cache) *CachedValues {
	return &CachedValues{c: c}
}

// Forget drops every derived value of the quiz. Safe to call with nothing
// cached; the only effect is a recomputation on the next read.
func (cv *CachedValues) Forget(ctx context.Context, quizID string) error {
	return cv.c.Delete(ctx,
		keyQuestionCount(quizID),
		keyMaxScore(quizID),
		keyAttemptCount(quizID),
		keyScaleRowCount(quizID),
		keyScaleRows(quizID),
	)
}

func (cv *CachedValues) getInt(ctx context.Context, key string, compute func() (int, error)) (int, error) {
	if v, ok, err := cv.c.Get(ctx, key); err == nil && ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n, nil
		}
	}
	n, err := compute()
	if err != nil {
		return 0, err
	}
	_ = cv.c.Set(ctx, key, strconv.Itoa(n), cacheTTL)
	return n, nil
}

func (cv *CachedValues) QuestionCount(ctx context.Context, quizID string, compute func() (int, error)) (int, error) {
	return cv.getInt(ctx, keyQuestionCount(quizID), compute)
}

func (cv *CachedValues) MaxScore(ctx context.Context, quizID string, compute func() (int, error)) (int, error) {
	return cv.getInt(ctx, keyMaxScore(quizID), compute)
}

func (cv *CachedValues) AttemptCount(ctx context.Context, quizID string, compute func() (int, error)) (int, error) {
	return cv.getInt(ctx, keyAttemptCount(quizID), compute)
}

func (cv *CachedValues) ScaleRowCount(ctx context.Context, quizID string, compute func() (int, error)) (int, error) {
	return cv.getInt(ctx, keyScaleRowCount(quizID), compute)
}

func (cv *CachedValues) ScaleRows(ctx context.Context, quizID string, compute func() ([]ScaleRow, error)) ([]ScaleRow, error) {
	if v, ok, err := cv.c.Get(ctx, keyScaleRows(quizID)); err == nil && ok {
		var rows []ScaleRow
		if err := json.Unmarshal([]byte(v), &rows); err == nil {
			return rows, nil
		}
	}
	rows, err := compute()
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal scale rows: %w", err)
	}
	_ = cv.c.Set(ctx, keyScaleRows(quizID), string(buf), cacheTTL)
	return rows, nil
}
