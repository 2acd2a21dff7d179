/**
 * @description
 * Identity middleware for the assistant service. The authenticated user id is
 * the only identity the rest of the service trusts.
 *
 * @notes
 * - Tokens are HS256 JWTs whose subject is the user's UUID.
 * - DevHeader lets local clients send X-User-ID instead. Never enable it in production.
 */
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

// UserIDContextKey is the key used to store the user ID in the request context.
const UserIDContextKey = contextKey("userID")

const devUserHeader = "X-User-ID"

// IdentityConfig configures how callers are authenticated.
type IdentityConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	DevHeader bool
}

// IdentityMiddleware resolves the caller's user ID and injects it into context.
func IdentityMiddleware(cfg IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" && cfg.DevHeader {
				userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(devUserHeader)))
				if err != nil {
					respondWithError(w, http.StatusUnauthorized, "Valid X-User-ID header required")
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserIDContextKey, userID)))
				return
			}
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondWithError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			userID, err := parseSubject(tokenString, cfg)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseSubject(tokenString string, cfg IdentityConfig) (uuid.UUID, error) {
	if cfg.JWTSecret == "" {
		return uuid.Nil, fmt.Errorf("token authentication is not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject is not a user id: %w", err)
	}
	return userID, nil
}

// UserFromContext retrieves the user ID from the request context.
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}
