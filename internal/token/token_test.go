package token

import (
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(append([]Option{WithSecret("test-secret")}, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := newTestService(t)

	signed, exp, err := svc.Issue("42", AudienceAPI, IssueOptions{ExpiresIn: 30 * time.Minute})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}

	claims, err := svc.Verify(signed, "", nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Aud() != AudienceAPI {
		t.Fatalf("unexpected audience: %s", claims.Aud())
	}
	if claims.Issuer != "gad.kz" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	span := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if span < 30*time.Minute-time.Second || span > 30*time.Minute+time.Second {
		t.Fatalf("expected exp-iat of 30m, got %v", span)
	}
	if claims.NotBefore == nil || claims.NotBefore.Time.After(claims.IssuedAt.Time) {
		t.Fatalf("nbf must not exceed iat: nbf=%v iat=%v", claims.NotBefore, claims.IssuedAt)
	}
}

func TestIssueGeneratesDistinctTokenIDs(t *testing.T) {
	svc := newTestService(t)

	first, _, err := svc.Issue("42", AudienceAPI, IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, _, err := svc.Issue("42", AudienceAPI, IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	c1, err := svc.Verify(first, "", nil)
	if err != nil {
		t.Fatalf("Verify first: %v", err)
	}
	c2, err := svc.Verify(second, "", nil)
	if err != nil {
		t.Fatalf("Verify second: %v", err)
	}
	if c1.ID == "" || c1.ID == c2.ID {
		t.Fatalf("expected distinct jti, got %q and %q", c1.ID, c2.ID)
	}
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestService(t, WithClock(func() time.Time { return issued }))

	signed, _, err := issuer.Issue("42", AudienceAPI, IssueOptions{ExpiresIn: time.Minute})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later := newTestService(t, WithClock(func() time.Time { return issued.Add(2 * time.Minute) }))
	if _, err := later.Verify(signed, "", nil); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyExpiredWinsOverBadSignature(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestService(t, WithClock(func() time.Time { return issued }))

	signed, _, err := issuer.Issue("42", AudienceAPI, IssueOptions{ExpiresIn: time.Minute})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := NewService(
		WithSecret("a-different-secret"),
		WithClock(func() time.Time { return issued.Add(time.Hour) }),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := other.Verify(signed, "", nil); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	svc := newTestService(t)

	for _, blob := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Verify(blob, "", nil); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("blob %q: expected ErrMalformedToken, got %v", blob, err)
		}
	}

	// Valid shape, wrong key.
	other, err := NewService(WithSecret("a-different-secret"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	signed, _, err := other.Issue("42", AudienceAPI, IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(signed, "", nil); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestVerifyAudienceMismatch(t *testing.T) {
	svc := newTestService(t)

	signed, _, err := svc.Issue("telegram:123:user:7", AudienceTelegram, IssueOptions{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(signed, AudienceAPI, nil); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("expected ErrAudienceMismatch, got %v", err)
	}
	if _, err := svc.Verify(signed, AudienceTelegram, nil); err != nil {
		t.Fatalf("expected success for matching audience, got %v", err)
	}
}

func TestVerifyRequiredScopes(t *testing.T) {
	svc := newTestService(t)

	signed, _, err := svc.Issue("42", AudienceAPI, IssueOptions{
		Scopes: []string{ScopeReadTasks, ScopeWriteTasks},
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := svc.Verify(signed, AudienceAPI, []string{ScopeWriteTasks})
	if err != nil {
		t.Fatalf("expected granted scope to pass, got %v", err)
	}
	if claims.Scope != ScopeReadTasks+" "+ScopeWriteTasks {
		t.Fatalf("unexpected scope claim: %q", claims.Scope)
	}
	if _, err := svc.Verify(signed, AudienceAPI, []string{ScopeAdminUsers}); !errors.Is(err, ErrMissingScope) {
		t.Fatalf("expected ErrMissingScope, got %v", err)
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	svc := newTestService(t)

	if _, _, err := svc.Issue("", AudienceAPI, IssueOptions{}); err == nil {
		t.Fatal("expected error for empty subject")
	}
	if _, _, err := svc.Issue("42", Audience("sms"), IssueOptions{}); err == nil {
		t.Fatal("expected error for unknown audience")
	}
}

func TestIssueNormalizesScopes(t *testing.T) {
	svc := newTestService(t)

	signed, _, err := svc.Issue("42", AudienceAPI, IssueOptions{
		Scopes: []string{" read:tasks ", "read:tasks", "", "write:tasks"},
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := svc.Verify(signed, "", nil)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	scopes := claims.Scopes()
	if len(scopes) != 2 || scopes[0] != ScopeReadTasks || scopes[1] != ScopeWriteTasks {
		t.Fatalf("unexpected scopes: %v", scopes)
	}
}
