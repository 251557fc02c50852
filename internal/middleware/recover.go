package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/serenify-auth/internal/response"
	"github.com/AnshRaj112/serenify-auth/pkg/clientip"
)

// LogFailure logs an unexpected error with enough request context to
// reproduce it. Credential fields in the body are redacted.
func LogFailure(logger zerolog.Logger, r *http.Request, err error, stack []byte) {
	ev := logger.Error().
		Err(err).
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("ip", ClientIPFrom(r.Context())).
		Str("user_agent", clientip.UserAgent(r))
	if body := RequestBody(r.Context()); body != "" {
		ev = ev.Str("body", body)
	}
	if len(stack) > 0 {
		ev = ev.Bytes("stack", stack)
	}
	ev.Msg("request failed")
}

// Recoverer turns a panic into the generic 500 envelope. With debug set the
// panic value and stack trace are included in the response.
func Recoverer(logger zerolog.Logger, debugMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				stack := debug.Stack()
				err := fmt.Errorf("panic: %v", rec)
				LogFailure(logger, r, err, stack)

				env := response.Envelope{Message: "Internal server error"}
				if debugMode {
					env.Errors = []string{err.Error()}
					env.Stack = string(stack)
				}
				response.Write(w, http.StatusInternalServerError, env)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request once the response is written.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := logger.Info()
			if status >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("ip", ClientIPFrom(r.Context())).
				Msg("request")
		})
	}
}
