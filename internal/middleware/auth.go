package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go-calc-api/internal/model"
)

type tokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string, expectedType string) (*model.AuthClaims, error)
}

type contextKey string

const (
	authClaimsContextKey contextKey = "auth_claims"
	rawTokenContextKey   contextKey = "raw_token"
)

type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeUnauthorized(w, "missing or invalid authorization header")
			return
		}

		token := strings.TrimSpace(header[7:])
		claims, err := m.validator.ValidateToken(r.Context(), token, "access")
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		ctx = context.WithValue(ctx, rawTokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

// RawTokenFromContext returns the bearer token the request authenticated
// with. Logout needs it to revoke the access token alongside the refresh one.
func RawTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(rawTokenContextKey).(string)
	return token, ok
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
}
