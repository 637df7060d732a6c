package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/quizora/quizora-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

// RequireAuthorJWT validates an author JWT from the Authorization
// header. Only the authoring surface is JWT-guarded; candidates present
// opaque session tokens to the attempt endpoints instead.
func RequireAuthorJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, authService)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// AuthorID returns the authenticated author id, or 0 for anonymous
// callers. Handlers shared between the public and authoring surfaces
// use it for solo-mode visibility checks.
func AuthorID(c *gin.Context) int {
	if claims := GetClaims(c); claims != nil {
		return claims.AuthorID
	}
	return 0
}

// OptionalAuthorJWT attaches claims when a valid token is present but
// never rejects the request. Used on attempt-start so owners can take
// their own unpublished solo-mode exams.
func OptionalAuthorJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := extractAndValidateClaims(c, authService); err == nil {
			c.Set(ContextKeyClaims, claims)
		}
		c.Next()
	}
}

func extractAndValidateClaims(c *gin.Context, authService *service.AuthService) (*service.Claims, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}

	if tokenStr == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	return authService.ValidateToken(tokenStr)
}
