package httpapi

import (
	"net/http"
	"testing"
	"time"

	"gad.kz/internal/token"
)

func TestBearerExtraction(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc.def.ghi", "abc.def.ghi", false},
		{"  Bearer   spaced  ", "spaced", false},
		{"", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Fatalf("header %q: %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestExpiredTokenGets401(t *testing.T) {
	api := newTestAPI(t)
	api.seedUser("user@gad.kz", "s3cret-pass", 2, 0)

	past := time.Now().Add(-time.Hour)
	stale, err := token.NewService(
		token.WithSecret("test-secret"),
		token.WithClock(func() time.Time { return past }),
	)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	blob, _, err := stale.Issue("someone", token.AudienceAPI, token.IssueOptions{
		Scopes: []string{token.ScopeReadTasks},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	resp := api.get("/v1/tasks", nil, map[string]string{"Authorization": "Bearer " + blob})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", resp.StatusCode)
	}
}

func TestGarbageTokenGets401(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/tasks", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", resp.StatusCode)
	}
}

func TestWrongSecretGets401(t *testing.T) {
	api := newTestAPI(t)

	other, err := token.NewService(token.WithSecret("a-different-secret"))
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	blob, _, err := other.Issue("someone", token.AudienceAPI, token.IssueOptions{
		Scopes: []string{token.ScopeReadTasks},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	resp := api.get("/v1/tasks", nil, map[string]string{"Authorization": "Bearer " + blob})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", resp.StatusCode)
	}
}
