package auth

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rkrmr33/bukber/internal/apperrors"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAdmin(t *testing.T, clock *fakeClock) *Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("buka-puasa"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash secret: %v", err)
	}
	admin, err := NewAdmin(AdminConfig{
		SecretHash: string(hash),
		TokenKey:   "test-signing-key",
		TokenTTL:   time.Hour,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	return admin
}

func TestLoginAndAuthenticate(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	admin := newTestAdmin(t, clock)

	tok, err := admin.Login("buka-puasa")
	if err != nil {
		t.Fatalf("Failed to login: %v", err)
	}
	if tok.Token == "" {
		t.Fatal("Expected a token")
	}
	if !tok.ExpiresAt.Equal(clock.t.Add(time.Hour)) {
		t.Errorf("Expected expiry %v, got %v", clock.t.Add(time.Hour), tok.ExpiresAt)
	}

	if err := admin.Authenticate(tok.Token); err != nil {
		t.Errorf("Expected token to be valid, got %v", err)
	}

	clock.Advance(2 * time.Hour)
	err = admin.Authenticate(tok.Token)
	if !errors.Is(err, apperrors.ErrAuth) {
		t.Errorf("Expected expired token to fail with auth error, got %v", err)
	}
}

func TestLoginWrongSecret(t *testing.T) {
	admin := newTestAdmin(t, &fakeClock{t: time.Now()})

	_, err := admin.Login("wrong")
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Reason != apperrors.ReasonInvalidSecret {
		t.Errorf("Expected invalid-secret, got %v", err)
	}
}

func TestAuthenticateRejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	admin := newTestAdmin(t, clock)

	other, err := NewAdmin(AdminConfig{
		Secret:   "buka-puasa",
		TokenKey: "another-key",
		TokenTTL: time.Hour,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	tok, err := other.Login("buka-puasa")
	if err != nil {
		t.Fatalf("Failed to login: %v", err)
	}

	for _, token := range []string{"", "not-a-jwt", tok.Token} {
		if err := admin.Authenticate(token); !errors.Is(err, apperrors.ErrAuth) {
			t.Errorf("Expected auth error for %q, got %v", token, err)
		}
	}
}

func TestNewAdminValidation(t *testing.T) {
	cases := []AdminConfig{
		{Secret: "s", TokenTTL: time.Hour},
		{TokenKey: "k", TokenTTL: time.Hour},
		{Secret: "s", TokenKey: "k"},
		{SecretHash: "not-bcrypt", TokenKey: "k", TokenTTL: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewAdmin(cfg); err == nil {
			t.Errorf("Case %d: expected error", i)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
		"Bearer":       "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q): expected %q, got %q", header, want, got)
		}
	}
}

func TestLimiter(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	l := NewLimiter(3)
	l.now = clock.Now

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("Expected attempt %d to be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("Expected fourth attempt to be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("Expected other key to be allowed")
	}

	clock.Advance(20 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("Expected one token to be refilled after 20s")
	}
}

func TestLimiterCleanup(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := NewLimiter(5)
	l.now = clock.Now

	l.Allow("a")
	clock.Advance(10 * time.Minute)
	l.Allow("b")

	if removed := l.Cleanup(5 * time.Minute); removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Expected 1 key left, got %d", l.Len())
	}
}

func TestLimiterBlockedOnlyAfterPenalties(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	l := NewLimiter(2)
	l.now = clock.Now

	for i := 0; i < 10; i++ {
		if l.Blocked("P1|203.0.113.9") {
			t.Fatalf("Expected check %d not to consume attempts", i+1)
		}
	}
	if l.Len() != 0 {
		t.Errorf("Expected Blocked not to track keys, got %d", l.Len())
	}

	l.Penalize("P1|203.0.113.9")
	if l.Blocked("P1|203.0.113.9") {
		t.Error("Expected one failure to leave an attempt")
	}
	l.Penalize("P1|203.0.113.9")
	if !l.Blocked("P1|203.0.113.9") {
		t.Error("Expected key to be blocked after two failures")
	}
	if l.Blocked("P1|198.51.100.4") {
		t.Error("Expected same participant from another address not to be blocked")
	}

	clock.Advance(30 * time.Second)
	if l.Blocked("P1|203.0.113.9") {
		t.Error("Expected an attempt to be refilled after 30s")
	}
}
