package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vinrai007/neww-mesgar10/internal/store/sqlite"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
}

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return NewService(st, testJWTConfig())
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.Register(ctx, " ab ", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_TrimsUsernameAndCreatesUser(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	// Should collide because the stored username is trimmed.
	if _, err := svc.Register(ctx, "alice", "password123"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	token, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Username != "alice" || claims.UserID <= 0 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerify(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, "bob", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	id, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Username != "bob" || id.UserID <= 0 {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := svc.Verify(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	// A well-signed token for a user that does not exist.
	ghost, err := GenerateToken(testJWTConfig(), 999, "ghost")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.Verify(ctx, ghost); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for missing user, got %v", err)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	cfg := testJWTConfig()

	otherSecret := *cfg
	otherSecret.Secret = []byte("another-secret")
	forged, _ := GenerateToken(&otherSecret, 1, "alice")
	if _, err := ValidateToken(cfg, forged); err == nil {
		t.Fatal("expected token signed with another secret to fail")
	}

	otherAudience := *cfg
	otherAudience.Audience = "elsewhere"
	foreign, _ := GenerateToken(&otherAudience, 1, "alice")
	if _, err := ValidateToken(cfg, foreign); err == nil {
		t.Fatal("expected token for another audience to fail")
	}

	expired := *cfg
	expired.TTL = -time.Minute
	stale, _ := GenerateToken(&expired, 1, "alice")
	if _, err := ValidateToken(cfg, stale); err == nil {
		t.Fatal("expected expired token to fail")
	}
}
