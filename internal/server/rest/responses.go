package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/logging"
)

const maxBodyBytes = 1 << 20

// envelope is the body shape of every API response.
type envelope struct {
	Success    bool                `json:"success"`
	StatusCode int                 `json:"statusCode"`
	Message    string              `json:"message"`
	Data       any                 `json:"data,omitempty"`
	Errors     []common.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, envelope{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func writeEnvelope(w http.ResponseWriter, e envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

// writeError maps err onto a status code and a client-safe message. Only
// unexpected errors are logged at error level.
func writeError(w http.ResponseWriter, r *http.Request, l logging.Logger, err error) {
	status, message := statusFor(err)

	e := envelope{StatusCode: status, Message: message}
	var ve *common.ValidationError
	if errors.As(err, &ve) {
		e.Errors = ve.Fields
	}

	switch {
	case status >= http.StatusInternalServerError:
		l.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err.Error())
	default:
		l.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err.Error())
	}

	writeEnvelope(w, e)
}

func statusFor(err error) (int, string) {
	var locked *common.LockedError
	var ve *common.ValidationError

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "Validation failed"
	case errors.As(err, &locked):
		return http.StatusForbidden, fmt.Sprintf("Account is locked. Please try again in %d minutes", locked.RemainingMinutes())
	case errors.Is(err, common.ErrAccountDeactivated):
		return http.StatusForbidden, "Your account has been deactivated"
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, common.ErrForbidden.Error()
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, common.ErrRefreshTokenNotFound):
		return http.StatusUnauthorized, "Refresh token not found"
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, "Refresh token has expired"
	case errors.Is(err, common.ErrTokenVersionRevoked):
		return http.StatusUnauthorized, "Token has been revoked"
	case errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, common.ErrEmailAlreadyExists), errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, common.ErrEmailAlreadyExists.Error()
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests, please try again later"
	case errors.Is(err, common.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// decodeJSON reads a JSON body capped at maxBodyBytes. Unknown fields are
// ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		ve := &common.ValidationError{}
		ve.Add("body", "invalid JSON payload")
		return ve
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be omitted.
// An empty body leaves dst untouched whether or not Content-Length was sent.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		ve := &common.ValidationError{}
		ve.Add("body", "invalid JSON payload")
		return ve
	}
	return nil
}
