// Package response writes the JSON envelope shared by every endpoint:
// {success, message, data?, errors?}.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
	// Stack is only set outside production.
	Stack string `json:"stack,omitempty"`
}

func Write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func OK(w http.ResponseWriter, status int, message string, data interface{}) {
	Write(w, status, Envelope{Success: true, Message: message, Data: data})
}

func Fail(w http.ResponseWriter, status int, message string, errs ...string) {
	Write(w, status, Envelope{Success: false, Message: message, Errors: errs})
}

// RetryAfter sets the header a rate-limited client should honor.
func RetryAfter(w http.ResponseWriter, seconds int) {
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}
