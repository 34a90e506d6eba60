package quiz

import (
	"context"
	"errors"
	"testing"
)

func TestValidateScale(t *testing.T) {
	cases := []struct {
		name    string
		rows    []ScaleRow
		wantRow int // -1 for valid
	}{
		{"valid default", DefaultScale, -1},
		{"valid single band", []ScaleRow{{Grade: 1, StartScore: 0, EndScore: 10}}, -1},
		{"empty", nil, 0},
		{"first band not at zero", []ScaleRow{{Grade: 1, StartScore: 1, EndScore: 10}}, 0},
		{"grade out of sequence", []ScaleRow{
			{Grade: 1, StartScore: 0, EndScore: 10},
			{Grade: 3, StartScore: 11, EndScore: 20},
		}, 1},
		{"gap between bands", []ScaleRow{
			{Grade: 1, StartScore: 0, EndScore: 10},
			{Grade: 2, StartScore: 12, EndScore: 20},
		}, 1},
		{"overlapping bands", []ScaleRow{
			{Grade: 1, StartScore: 0, EndScore: 10},
			{Grade: 2, StartScore: 10, EndScore: 20},
		}, 1},
		{"end before start", []ScaleRow{
			{Grade: 1, StartScore: 0, EndScore: 10},
			{Grade: 2, StartScore: 11, EndScore: 11},
			{Grade: 3, StartScore: 12, EndScore: 5},
		}, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateScale(tc.rows)
			if tc.wantRow < 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ScaleValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("want ScaleValidationError, got %v", err)
			}
			if verr.RowIndex != tc.wantRow {
				t.Fatalf("row index = %d, want %d", verr.RowIndex, tc.wantRow)
			}
		})
	}
}

func TestGradeForRowsClamps(t *testing.T) {
	rows := []ScaleRow{
		{Grade: 1, StartScore: 0, EndScore: 9},
		{Grade: 2, StartScore: 10, EndScore: 19},
		{Grade: 3, StartScore: 20, EndScore: 29},
	}
	cases := []struct {
		score int
		want  int
	}{
		{0, 1}, {9, 1}, {10, 2}, {25, 3}, {29, 3},
		{100, 3}, // past the top band clamps to top grade
		{-5, 1},  // below zero clamps to bottom grade
	}
	for _, tc := range cases {
		if got := gradeForRows(rows, tc.score); got != tc.want {
			t.Errorf("gradeForRows(%d) = %d, want %d", tc.score, got, tc.want)
		}
	}
}

func TestReplaceScaleRejectsInvalidAndKeepsPrior(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, nil)
	ctx := context.Background()

	good := []ScaleRow{
		{Grade: 1, StartScore: 0, EndScore: 5},
		{Grade: 2, StartScore: 6, EndScore: 10},
	}
	if err := env.svc.ReplaceScale(ctx, q.ID, good); err != nil {
		t.Fatalf("replace: %v", err)
	}

	bad := []ScaleRow{
		{Grade: 1, StartScore: 0, EndScore: 20},
		{Grade: 2, StartScore: 21, EndScore: 19}, // end before start
	}
	err := env.svc.ReplaceScale(ctx, q.ID, bad)
	var verr *ScaleValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ScaleValidationError, got %v", err)
	}

	rows, err := env.svc.ScaleRows(ctx, q.ID)
	if err != nil {
		t.Fatalf("scale rows: %v", err)
	}
	if len(rows) != 2 || rows[1].EndScore != 10 {
		t.Fatalf("prior scale lost: %+v", rows)
	}
}

func TestScaleRowsFallsBackToDefault(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQuiz(t, nil)
	ctx := context.Background()

	rows, err := env.svc.ScaleRows(ctx, q.ID)
	if err != nil {
		t.Fatalf("scale rows: %v", err)
	}
	if len(rows) != len(DefaultScale) {
		t.Fatalf("want default scale, got %+v", rows)
	}
	usesDefault, err := env.svc.UsesDefaultScale(ctx, q.ID)
	if err != nil || !usesDefault {
		t.Fatalf("UsesDefaultScale = %v, %v", usesDefault, err)
	}

	custom := []ScaleRow{{Grade: 1, StartScore: 0, EndScore: 100}}
	if err := env.svc.ReplaceScale(ctx, q.ID, custom); err != nil {
		t.Fatalf("replace: %v", err)
	}
	usesDefault, err = env.svc.UsesDefaultScale(ctx, q.ID)
	if err != nil || usesDefault {
		t.Fatalf("UsesDefaultScale after replace = %v, %v", usesDefault, err)
	}

	if err := env.svc.DeleteScale(ctx, q.ID); err != nil {
		t.Fatalf("delete scale: %v", err)
	}
	rows, err = env.svc.ScaleRows(ctx, q.ID)
	if err != nil || len(rows) != len(DefaultScale) {
		t.Fatalf("default not restored: %v, %+v", err, rows)
	}
}
