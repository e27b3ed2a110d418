package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/pkg/auth"
)

// TokenValidator is satisfied by *auth.JWTManager.
type TokenValidator interface {
	ValidateAccessToken(token string) (*domain.Claims, error)
}

// Authenticate requires a valid Bearer access token and stores its claims on
// the context.
func Authenticate(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}

		claims, err := v.ValidateAccessToken(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequireRoles rejects callers whose role is not listed. It must run after
// Authenticate.
func RequireRoles(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

func ClaimsFrom(c *gin.Context) *domain.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*domain.Claims)
	return claims
}
