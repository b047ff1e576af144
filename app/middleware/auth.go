package middleware

import (
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-menu-auth/app/dto/http"
	"github.com/vibast-solutions/ms-go-menu-auth/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Context keys set by RequireAuth.
const (
	ContextAccountID = "account_id"
	ContextUsername  = "username"
	ContextRole      = "role"
	ContextKind      = "kind"
)

type accessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	credentials accessTokenValidator
}

func NewAuthMiddleware(credentials accessTokenValidator) *AuthMiddleware {
	return &AuthMiddleware{credentials: credentials}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "missing authorization header"})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid authorization header format"})
		}

		claims, err := m.credentials.ValidateAccessToken(parts[1])
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid or expired token"})
		}

		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextKind, claims.Kind)

		return next(c)
	}
}

// RequireRole must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ContextRole).(string)
			for _, allowed := range roles {
				if role == allowed {
					return next(c)
				}
			}

			logrus.WithField("role", role).Debug("Role not permitted")
			return c.JSON(http.StatusForbidden, httpdto.ErrorResponse{Error: "forbidden"})
		}
	}
}
