package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/serenify-auth/internal/apperr"
	"github.com/AnshRaj112/serenify-auth/internal/middleware"
	"github.com/AnshRaj112/serenify-auth/internal/response"
	"github.com/AnshRaj112/serenify-auth/internal/services"
	"github.com/AnshRaj112/serenify-auth/pkg/clientip"
)

const maxJSONBody = 1 << 20

// Handler exposes the auth service over HTTP.
type Handler struct {
	auth   *services.AuthService
	logger zerolog.Logger
	// debug adds internal error details to 500 responses.
	debug bool
}

func New(auth *services.AuthService, logger zerolog.Logger, debug bool) *Handler {
	return &Handler{auth: auth, logger: logger, debug: debug}
}

func requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{
		IP:        middleware.ClientIPFrom(r.Context()),
		UserAgent: clientip.UserAgent(r),
	}
}

// decode reads a JSON body into dst. An empty body leaves dst untouched so
// the service reports the missing fields.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Validation("Invalid request body", err.Error())
}

// fail writes err as an envelope. Expected errors keep their message;
// anything else is logged with request context and hidden behind a generic
// 500 unless running in debug mode.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindRateLimited {
		response.RetryAfter(w, e.RetryAfter)
		// the flow's own policy replaces what the general limiter reported
		hdr := w.Header()
		hdr.Set("X-RateLimit-Remaining", "0")
		if e.Limit > 0 {
			hdr.Set("X-RateLimit-Limit", strconv.Itoa(e.Limit))
			hdr.Set("X-RateLimit-Reset", strconv.FormatInt(e.ResetAt.Unix(), 10))
		}
	}
	if e.Kind != apperr.KindInternal {
		response.Fail(w, e.Status(), e.Message, e.Errors...)
		return
	}

	middleware.LogFailure(h.logger, r, err, nil)
	env := response.Envelope{Message: e.Message}
	if h.debug {
		env.Errors = []string{err.Error()}
		env.Stack = string(debug.Stack())
	}
	response.Write(w, http.StatusInternalServerError, env)
}

// currentUser returns the id stored by middleware.RequireAuth.
func currentUser(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		return uuid.Nil, apperr.Unauthorized()
	}
	return id, nil
}
