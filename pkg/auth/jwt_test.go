package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/config"
	"github.com/prempal04/AyurSutra/internal/domain"
)

func testManager() *JWTManager {
	return NewJWTManager(config.JWTConfig{
		Secret:         "test-secret-at-least-thirty-two-chars",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "ayursutra-api",
	})
}

func TestAccessToken_RoundTrip(t *testing.T) {
	m := testManager()
	staff := uuid.New()
	in := &domain.Claims{UserID: uuid.New(), Email: "vaidya@example.com", Role: domain.RoleDoctor, StaffID: &staff}

	token, expiresAt, err := m.GenerateAccessToken(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiry in the past: %v", expiresAt)
	}

	out, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.UserID != in.UserID || out.Role != domain.RoleDoctor || out.StaffID == nil || *out.StaffID != staff {
		t.Errorf("claims = %+v", out)
	}
	if pid := out.PractitionerID(); pid == nil || *pid != staff {
		t.Errorf("practitioner id = %v", pid)
	}
}

func TestValidateAccessToken_Expired(t *testing.T) {
	m := testManager()
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := m.GenerateAccessToken(&domain.Claims{UserID: uuid.New(), Role: domain.RolePatient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.now = time.Now
	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	m := testManager()
	good, _, _ := m.GenerateAccessToken(&domain.Claims{UserID: uuid.New(), Role: domain.RoleAdmin})

	other := NewJWTManager(config.JWTConfig{Secret: "another-secret", AccessTokenTTL: time.Minute, Issuer: "ayursutra-api"})
	if _, err := other.ValidateAccessToken(good); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("wrong secret: got %v", err)
	}

	foreign := NewJWTManager(config.JWTConfig{Secret: m.cfg.Secret, AccessTokenTTL: time.Minute, Issuer: "someone-else"})
	token, _, _ := foreign.GenerateAccessToken(&domain.Claims{UserID: uuid.New(), Role: domain.RoleAdmin})
	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("wrong issuer: got %v", err)
	}

	if _, err := m.ValidateAccessToken("not.a.token"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("garbage: got %v", err)
	}
}

func TestValidateAccessToken_RefreshTokenRejected(t *testing.T) {
	m := testManager()
	claims := ayursutraClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:      string(domain.RoleAdmin),
		TokenType: "refresh",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if _, err := m.ValidateAccessToken(token); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Errorf("expected ErrTokenTypeMismatch, got %v", err)
	}
}

func TestGenerateAccessToken_UnknownRole(t *testing.T) {
	if _, _, err := testManager().GenerateAccessToken(&domain.Claims{UserID: uuid.New(), Role: "nurse"}); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}
