package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eduforge/assess/internal/rbac"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("alice", "teacher")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := a.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Sub != "alice" || c.Role != "teacher" {
		t.Fatalf("claims = %+v", c)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	tok, err := NewAuthService("key-one").IssueJWT("alice", "student")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewAuthService("key-two").Parse(tok); err == nil {
		t.Fatal("token signed with another key parsed")
	}
}

func TestJWTMiddlewareAttachesActorAndRole(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, _ := a.IssueJWT("bob", "student")

	var gotActor, gotRole string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = ActorFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotActor != "bob" || gotRole != "student" {
		t.Fatalf("actor=%q role=%q", gotActor, gotRole)
	}
}

func TestJWTMiddlewareRejectsMissingOrBadToken(t *testing.T) {
	a := NewAuthService("test-secret")
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without a token")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", rec.Code)
	}
}
