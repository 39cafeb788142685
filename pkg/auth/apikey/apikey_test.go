package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/rhuss/funcrun/pkg/auth"
)

func newTestAuth() *Authenticator {
	return New([]Key{
		{Key: "sk-test-key-1", Subject: "alice", Scopes: []string{"run_code"}},
		{Key: "sk-test-key-2"},
		{Key: ""},
	})
}

func authenticate(t *testing.T, a *Authenticator, header string) auth.AuthResult {
	t.Helper()
	r, _ := http.NewRequest("POST", "/mcp", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		want        auth.AuthDecision
		wantSubject string
	}{
		{"valid key", "Bearer sk-test-key-1", auth.Yes, "alice"},
		{"default subject", "Bearer sk-test-key-2", auth.Yes, "apikey"},
		{"unknown key abstains", "Bearer sk-wrong", auth.Abstain, ""},
		{"no header", "", auth.Abstain, ""},
		{"basic auth", "Basic dXNlcjpwYXNz", auth.Abstain, ""},
		{"empty bearer", "Bearer ", auth.No, ""},
	}

	a := newTestAuth()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := authenticate(t, a, tt.header)
			if result.Decision != tt.want {
				t.Fatalf("Decision = %s, want %s", result.Decision, tt.want)
			}
			if tt.want == auth.Yes && result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
		})
	}
}

func TestAuthenticate_IdentityIsCopied(t *testing.T) {
	a := newTestAuth()

	first := authenticate(t, a, "Bearer sk-test-key-1")
	first.Identity.Subject = "mallory"

	second := authenticate(t, a, "Bearer sk-test-key-1")
	if second.Identity.Subject != "alice" {
		t.Errorf("stored identity was mutated: %q", second.Identity.Subject)
	}
	if !second.Identity.HasScope("run_code") {
		t.Error("expected run_code scope")
	}
}

func TestAuthenticate_EmptyKeyNeverMatches(t *testing.T) {
	a := New([]Key{{Key: ""}})
	if len(a.keys) != 0 {
		t.Errorf("empty keys must be skipped, got %d", len(a.keys))
	}
}
