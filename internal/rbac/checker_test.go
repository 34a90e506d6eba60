package rbac

import (
	"context"
	"testing"
)

func TestCheckerWildcards(t *testing.T) {
	c := NewChecker(nil)

	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "quiz:view", true},
		{"student", "quiz:edit", false},
		{"student", "attempt:start", true},
		{"student", "attempt:revoke", false},
		{"teacher", "quiz:delete", true}, // quiz:*
		{"teacher", "grant:edit", true},  // grant:*
		{"teacher", "attempt:revoke", true},
		{"admin", "anything:at-all", true}, // *
		{"ghost", "quiz:view", false},
		{"", "quiz:view", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestCheckerAny(t *testing.T) {
	c := NewChecker(nil)
	if !c.Any("student", "attempt:view-own", "attempt:view-all") {
		t.Fatal("student lost view-own")
	}
	if c.Any("student", "attempt:view-all", "attempt:revoke") {
		t.Fatal("student gained teacher perms")
	}
}

func TestRoleContextRoundTrip(t *testing.T) {
	ctx := WithRole(context.Background(), "teacher")
	if got := RoleFromContext(ctx); got != "teacher" {
		t.Fatalf("role = %q", got)
	}
	if got := RoleFromContext(context.Background()); got != "" {
		t.Fatalf("empty context returned %q", got)
	}
}
