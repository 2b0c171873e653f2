package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wb-go/wbf/zlog"

	"eventsphere/internal/dto"
)

// Context keys populated by Auth for downstream handlers.
const (
	CtxUserID    = "userID"
	CtxUserRole  = "userRole"
	CtxUserEmail = "userEmail"
)

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zlog.Logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

type identityClaims struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Auth is the identity collaborator adapter: it verifies the bearer token
// and injects the caller's {id, role, email}. Nothing past this middleware
// ever authenticates credentials.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			dto.UnauthorizedError(c, dto.TokenInvalid, "Missing or malformed authorization header")
			c.Abort()
			return
		}

		claims := &identityClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid || claims.ID == "" {
			dto.UnauthorizedError(c, dto.TokenInvalid, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(CtxUserID, claims.ID)
		c.Set(CtxUserRole, claims.Role)
		c.Set(CtxUserEmail, claims.Email)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("empty authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("malformed authorization header")
	}
	return parts[1], nil
}
