package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/gin-gonic/gin"
)

// OperatorKey is the gin context key holding the authenticated username.
const OperatorKey = "operator"

// RequireOperator rejects requests without a valid bearer token. It is a
// pass-through when auth is disabled.
func (s *Service) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.enabled {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "missing authorization header", nil))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid authorization header format", nil))
			return
		}

		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid or expired token", nil))
			return
		}

		c.Set(OperatorKey, claims.Username)
		c.Next()
	}
}

// Operator returns the authenticated operator, empty when auth is disabled.
func Operator(c *gin.Context) string {
	return c.GetString(OperatorKey)
}
