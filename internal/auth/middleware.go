package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kisan-sarthi/backend/internal/models"
)

const principalKey = "auth.principal"

// SessionValidator resolves a bearer token.
type SessionValidator interface {
	CurrentSession(ctx context.Context, token string) (*models.Session, error)
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// RequireSession rejects requests without a valid session and stores the
// principal in the echo context.
func RequireSession(v SessionValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			sess, err := v.CurrentSession(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
				}
				return err
			}
			c.Set(principalKey, sess.Principal)
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal stored by RequireSession.
func PrincipalFrom(c echo.Context) (models.Principal, bool) {
	p, ok := c.Get(principalKey).(models.Principal)
	return p, ok
}
