// Package auth is the identity boundary. The identity provider issues
// signed tokens elsewhere; this middleware only verifies the signature
// and hands the token subject to the handlers as the opaque owner
// identifier. No credential validation or user provisioning happens here.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// OwnerContextKey holds the authenticated owner identifier.
	OwnerContextKey ContextKey = "owner_id"
)

// RequireAuth creates authentication middleware that validates the
// Bearer token and stores the owner identifier on the request context.
func RequireAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			ownerID, err := validateToken(tokenParts[1], secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(OwnerContextKey), ownerID)
			return next(c)
		}
	}
}

// validateToken checks the HMAC signature and expiry and returns the
// token subject.
func validateToken(tokenString, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = fmt.Errorf("invalid token")
		}
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return claims.Subject, nil
}

// MustOwnerID returns the owner identifier set by RequireAuth. Routes
// behind the auth group always have it.
func MustOwnerID(c echo.Context) string {
	ownerID, ok := c.Get(string(OwnerContextKey)).(string)
	if !ok || ownerID == "" {
		panic("auth: owner id missing from request context")
	}
	return ownerID
}
