package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

type ctxKey int

const (
	clientIPKey ctxKey = iota
	userIDKey
	bodyKey
)

// maxLoggedBody bounds how much of a request body is kept for error logs.
const maxLoggedBody = 512

// ClientIP resolves the caller address once per request and stores it in
// the context for rate limiting, auditing and logs.
func ClientIP(resolve func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey, resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFrom returns the address stored by ClientIP, or "unknown".
func ClientIPFrom(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFrom returns the authenticated user set by RequireAuth.
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

type boundedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

type teeBody struct {
	io.Reader
	io.Closer
}

// CaptureBody keeps the first bytes a handler reads from the request body
// so failures can be logged with the payload that caused them.
func CaptureBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		captured := &boundedBuffer{max: maxLoggedBody}
		r.Body = teeBody{Reader: io.TeeReader(r.Body, captured), Closer: r.Body}
		ctx := context.WithValue(r.Context(), bodyKey, captured)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var secretFields = regexp.MustCompile(`(?i)("(?:password|confirmPassword|currentPassword|newPassword|token|refreshToken|accessToken|code)"\s*:\s*)"(?:[^"\\]|\\.)*"?`)

// RequestBody returns the captured body with credential fields redacted.
func RequestBody(ctx context.Context) string {
	captured, ok := ctx.Value(bodyKey).(*boundedBuffer)
	if !ok || captured.buf.Len() == 0 {
		return ""
	}
	return RedactSecrets(captured.buf.String())
}

func RedactSecrets(body string) string {
	return secretFields.ReplaceAllString(body, `${1}"[REDACTED]"`)
}
