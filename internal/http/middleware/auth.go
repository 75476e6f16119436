package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/flowforge/orchestrator/internal/platform/logger"
)

// AuthMiddleware gates mutating API routes behind a single
// shared-secret operator token. This is machine-to-machine auth, not
// an end-user account system: the token is a JWT signed with the
// operator secret as an HMAC key, carrying no user claims of its own.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

// NewAuthMiddleware builds an AuthMiddleware checking bearer tokens
// against operatorToken.
func NewAuthMiddleware(log *logger.Logger, operatorToken string) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "auth"), secret: []byte(operatorToken)}
}

// RequireAuth rejects any request without a bearer token signed by the
// configured operator secret.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing bearer token", "code": "unauthorized"},
			})
			return
		}

		_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return am.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			am.log.Debug("rejected operator token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid token", "code": "unauthorized"},
			})
			return
		}

		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
