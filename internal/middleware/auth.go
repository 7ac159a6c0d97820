package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/medtrackr/clinic-api/internal/handler"
	"github.com/medtrackr/clinic-api/internal/model"
	authService "github.com/medtrackr/clinic-api/internal/service/auth"
)

const ContextClaims = "claims"

type AuthMiddleware struct {
	authSvc *authService.Service
}

func NewAuthMiddleware(authSvc *authService.Service) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// Authenticate verifies the bearer token and stores the claims in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.authSvc.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// RequireRole rejects requests whose verified token carries another role.
func (m *AuthMiddleware) RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
			c.Abort()
			return
		}
		if claims.Role != role {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFromContext returns the verified token claims set by Authenticate.
func ClaimsFromContext(c *gin.Context) (*model.TokenClaims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*model.TokenClaims)
	return claims, ok
}
