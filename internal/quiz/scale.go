package quiz

import "fmt"

// DefaultScale is the process-wide grading scale used by quizzes that carry
// no custom rows.
var DefaultScale = []ScaleRow{
	{Grade: 1, StartScore: 0, EndScore: 19},
	{Grade: 2, StartScore: 20, EndScore: 39},
	{Grade: 3, StartScore: 40, EndScore: 59},
	{Grade: 4, StartScore: 60, EndScore: 79},
	{Grade: 5, StartScore: 80, EndScore: 100},
}

// ValidateScale enforces the scale invariants: grades count up from 1 by
// one, the first band starts at 0, each band's start is the previous band's
// end plus one, and every band has end >= start. Returns nil for a valid
// scale, or a ScaleValidationError naming the first offending row.
func ValidateScale(rows []ScaleRow) error {
	if len(rows) == 0 {
		return &ScaleValidationError{RowIndex: 0, Reason: "scale has no rows"}
	}
	for i, row := range rows {
		if row.Grade != i+1 {
			return &ScaleValidationError{RowIndex: i, Reason: fmt.Sprintf("grade must be %d, got %d", i+1, row.Grade)}
		}
		if i == 0 {
			if row.StartScore != 0 {
				return &ScaleValidationError{RowIndex: i, Reason: fmt.Sprintf("first band must start at 0, got %d", row.StartScore)}
			}
		} else if want := rows[i-1].EndScore + 1; row.StartScore != want {
			return &ScaleValidationError{RowIndex: i, Reason: fmt.Sprintf("band must start at %d, got %d", want, row.StartScore)}
		}
		if row.EndScore < row.StartScore {
			return &ScaleValidationError{RowIndex: i, Reason: fmt.Sprintf("band end %d is before start %d", row.EndScore, row.StartScore)}
		}
	}
	return nil
}

// gradeForRows resolves score against an already-loaded scale. Scores past
// the last band clamp to the top grade; negative scores to the bottom one.
func gradeForRows(rows []ScaleRow, score int) int {
	if len(rows) == 0 {
		return 0
	}
	for _, row := range rows {
		if score >= row.StartScore && score <= row.EndScore {
			return row.Grade
		}
	}
	if score > rows[len(rows)-1].EndScore {
		return rows[len(rows)-1].Grade
	}
	return rows[0].Grade
}
