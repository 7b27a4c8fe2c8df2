package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/personality"
)

// Error codes reported to HTTP and websocket clients.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeQueueFull       = "queue_full"
	CodeRateLimited     = "rate_limited"
	CodeUnavailable     = "unavailable"
	CodeTimeout         = "timeout"
	CodeInternal        = "internal"
)

// ErrorCode classifies err for clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, memory.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, engine.ErrOverrideQueueFull):
		return CodeQueueFull
	case errors.Is(err, engine.ErrStopped), errors.Is(err, personality.ErrNoLearnedStore):
		return CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}

func statusFor(code string) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeQueueFull, CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// jsonError sends an error response classified from err.
func jsonError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	jsonResponse(w, statusFor(code), map[string]string{"error": code, "message": err.Error()})
}

// jsonResponse sends data with the given status.
func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func methodNotAllowed(w http.ResponseWriter) {
	jsonResponse(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
}
