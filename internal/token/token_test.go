package token

import (
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New("test-secret-at-least-32-bytes-long", time.Hour, 24*time.Hour, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestIssueAndVerifyAccess(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueAccess("user-1", "a@b.c", RoleAuthenticated)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	claims, err := svc.VerifyAccess(raw)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != RoleAuthenticated {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueRefresh("user-1", "a@b.c", RoleAuthenticated)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	if _, err := svc.VerifyAccess(raw); err == nil {
		t.Fatal("expected VerifyAccess to reject a refresh token")
	}
}

func TestVerifyRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueAccess("user-1", "a@b.c", RoleAuthenticated)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	if _, err := svc.VerifyRefresh(raw); err == nil {
		t.Fatal("expected VerifyRefresh to reject a plain access token")
	}
}

func TestAdminAndAnonTokensHaveFixedSubjects(t *testing.T) {
	svc := newTestService(t)

	adminRaw, err := svc.IssueAdmin()
	if err != nil {
		t.Fatalf("IssueAdmin: %v", err)
	}
	adminClaims, err := svc.VerifyAccess(adminRaw)
	if err != nil {
		t.Fatalf("VerifyAccess(admin): %v", err)
	}
	if adminClaims.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", adminClaims.Role)
	}
	if adminClaims.Subject != adminSubject {
		t.Fatalf("expected admin subject %q, got %q", adminSubject, adminClaims.Subject)
	}

	anonRaw, err := svc.IssueAnon()
	if err != nil {
		t.Fatalf("IssueAnon: %v", err)
	}
	anonClaims, err := svc.VerifyAccess(anonRaw)
	if err != nil {
		t.Fatalf("VerifyAccess(anon): %v", err)
	}
	if anonClaims.Role != RoleAnon {
		t.Fatalf("expected anon role, got %q", anonClaims.Role)
	}
	if anonClaims.Subject != anonSubject {
		t.Fatalf("expected anon subject %q, got %q", anonSubject, anonClaims.Subject)
	}
}

func TestNewRejectsEmptySecret(t *testing.T) {
	if _, err := New("", time.Hour, time.Hour, "", ""); err == nil {
		t.Fatal("expected New to refuse an empty secret")
	}
}
