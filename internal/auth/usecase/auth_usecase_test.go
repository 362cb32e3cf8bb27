package usecase

import (
	"context"
	"testing"
	"time"

	authdomain "foratask-backend/internal/auth/domain"
	"foratask-backend/internal/auth/repository"
	"foratask-backend/internal/testutil"
	"foratask-backend/pkg/config"
)

func newAuth(t *testing.T, secret string) AuthUsecase {
	t.Helper()
	cfg := &config.Config{JWTSecret: secret, JWTAccessExpiry: time.Hour}
	return NewAuthUsecase(repository.NewPushTokenRepository(testutil.NewDB(t)), cfg)
}

func TestIssueAndValidateToken(t *testing.T) {
	auth := newAuth(t, "secret")

	tests := []struct {
		name  string
		actor authdomain.Actor
		admin bool
	}{
		{"plain user", authdomain.Actor{ID: "u1", CompanyID: "c1"}, false},
		{"admin", authdomain.Actor{ID: "u2", CompanyID: "c1", Role: authdomain.RoleAdmin}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := auth.IssueToken(tt.actor, time.Hour)
			if err != nil {
				t.Fatalf("IssueToken: %v", err)
			}
			actor, err := auth.ValidateToken(token)
			if err != nil {
				t.Fatalf("ValidateToken: %v", err)
			}
			if actor.ID != tt.actor.ID || actor.CompanyID != "c1" || actor.IsAdmin() != tt.admin {
				t.Errorf("unexpected actor %+v", actor)
			}
		})
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	auth := newAuth(t, "secret")
	other := newAuth(t, "another-secret")

	foreign, err := other.IssueToken(authdomain.Actor{ID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	defaulted, err := auth.IssueToken(authdomain.Actor{ID: "u1"}, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
	} {
		if _, err := auth.ValidateToken(token); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}

	// a non-positive ttl falls back to the configured expiry
	if _, err := auth.ValidateToken(defaulted); err != nil {
		t.Errorf("default expiry token should be valid: %v", err)
	}

	if _, err := auth.IssueToken(authdomain.Actor{}, time.Hour); err == nil {
		t.Error("expected an error for a token without a user id")
	}
}

func TestPushTokens(t *testing.T) {
	auth := newAuth(t, "secret")
	ctx := context.Background()

	if endpoint, err := auth.Lookup(ctx, "u1"); err != nil || endpoint != nil {
		t.Fatalf("no device yet: %+v %v", endpoint, err)
	}

	if err := auth.RegisterPushToken(ctx, "u1", "  ", "ios"); err == nil {
		t.Error("expected an error for a blank token")
	}
	if err := auth.RegisterPushToken(ctx, "u1", "tok-1", "ios"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := auth.RegisterPushToken(ctx, "u1", "tok-2", "android"); err != nil {
		t.Fatalf("register: %v", err)
	}

	endpoint, err := auth.Lookup(ctx, "u1")
	if err != nil || endpoint == nil || len(endpoint.Tokens) != 2 {
		t.Fatalf("lookup: %+v %v", endpoint, err)
	}

	// the same device signing in as someone else moves the token
	if err := auth.RegisterPushToken(ctx, "u2", "tok-1", "ios"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if endpoint, _ := auth.Lookup(ctx, "u1"); endpoint == nil || len(endpoint.Tokens) != 1 || endpoint.Tokens[0] != "tok-2" {
		t.Errorf("u1 should keep only tok-2, got %+v", endpoint)
	}

	if err := auth.UnregisterPushToken(ctx, "u1", "tok-1"); err == nil {
		t.Error("u1 must not remove a token it no longer owns")
	}
	if err := auth.UnregisterPushToken(ctx, "u1", "tok-2"); err != nil {
		t.Errorf("unregister: %v", err)
	}
	if err := auth.ForgetToken(ctx, "tok-1"); err != nil {
		t.Errorf("forget: %v", err)
	}
	if endpoint, _ := auth.Lookup(ctx, "u2"); endpoint != nil {
		t.Errorf("u2 should have no device left, got %+v", endpoint)
	}
}
