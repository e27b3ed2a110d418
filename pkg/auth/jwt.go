package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prempal04/AyurSutra/internal/config"
	"github.com/prempal04/AyurSutra/internal/domain"
)

const accessTokenType = "access"

var (
	ErrTokenExpired      = errors.New("token has expired")
	ErrTokenInvalid      = errors.New("token is invalid")
	ErrTokenTypeMismatch = errors.New("wrong token type")
	ErrUnknownRole       = errors.New("token carries an unknown role")
)

type ayursutraClaims struct {
	jwt.RegisteredClaims
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	StaffID   *uuid.UUID `json:"staff_id,omitempty"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	TokenType string     `json:"token_type"`
}

// JWTManager verifies the HS256 access tokens issued by the clinic's identity
// service. GenerateAccessToken exists for local development and tests.
type JWTManager struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewJWTManager(cfg config.JWTConfig) *JWTManager {
	return &JWTManager{cfg: cfg, now: time.Now}
}

func (m *JWTManager) GenerateAccessToken(claims *domain.Claims) (string, time.Time, error) {
	if !claims.Role.IsValid() {
		return "", time.Time{}, ErrUnknownRole
	}
	now := m.now()
	expiresAt := now.Add(m.cfg.AccessTokenTTL)

	jwtClaims := ayursutraClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   claims.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			// 10 seconds of skew tolerance
			NotBefore: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		},
		Email:     claims.Email,
		Role:      string(claims.Role),
		StaffID:   claims.StaffID,
		PatientID: claims.PatientID,
		TokenType: accessTokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)
	signed, err := token.SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *JWTManager) ValidateAccessToken(tokenString string) (*domain.Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&ayursutraClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(m.cfg.Secret), nil
		},
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*ayursutraClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != accessTokenType {
		return nil, ErrTokenTypeMismatch
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	role := domain.Role(claims.Role)
	if !role.IsValid() {
		return nil, ErrUnknownRole
	}

	return &domain.Claims{
		UserID:    userID,
		Email:     claims.Email,
		Role:      role,
		StaffID:   claims.StaffID,
		PatientID: claims.PatientID,
	}, nil
}
