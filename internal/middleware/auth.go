package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/AnshRaj112/serenify-auth/internal/apperr"
	"github.com/AnshRaj112/serenify-auth/internal/response"
)

type AccessTokenVerifier interface {
	VerifyAccess(token string) (uuid.UUID, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func BearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// RequireAuth rejects requests without a valid access token and stores the
// token's user id in the request context.
func RequireAuth(verifier AccessTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				e := apperr.Unauthorized()
				response.Fail(w, e.Status(), "Access token required")
				return
			}
			userID, err := verifier.VerifyAccess(token)
			if err != nil {
				e := apperr.As(err)
				response.Fail(w, e.Status(), e.Message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
