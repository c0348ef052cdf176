// Package middleware holds the HTTP boundary checks. Token issuance
// lives elsewhere; this layer only validates bearer tokens and stamps
// the authenticated principal into the request context.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/domain"
	waerrors "go.pilab.hu/wabroker/errors"
)

// UserClaims are the access-token claims this service relies on.
type UserClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RequireAuth returns echo middleware validating a Bearer JWT signed
// with the shared HMAC secret. On success the user ID is attached to
// the request context; the core re-checks it on every operation.
func RequireAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, waerrors.NewUnauthorized("access token required"))
			}
			rawToken := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &UserClaims{}
			token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid || claims.UserID == "" {
				log.Debug().Err(err).Msg("Rejected request with invalid or expired token")
				return c.JSON(http.StatusUnauthorized, waerrors.NewUnauthorized("invalid or expired token"))
			}

			ctx := domain.ContextWithUserID(c.Request().Context(), claims.UserID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
