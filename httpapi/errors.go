package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authcore.ErrUserNotFound),
		errors.Is(err, authcore.ErrRoleNotFound),
		errors.Is(err, authcore.ErrPermissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrInvalidToken),
		errors.Is(err, authcore.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, authcore.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, authcore.ErrDuplicateRole),
		errors.Is(err, authcore.ErrDuplicatePermission),
		errors.Is(err, authcore.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, authcore.ErrMissingToken),
		errors.Is(err, authcore.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, authcore.ErrLoginRateLimited),
		errors.Is(err, authcore.ErrRefreshRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides token rejection reasons and internal failures.
func publicMessage(err error, status int) string {
	switch {
	case status == http.StatusInternalServerError:
		return "internal server error"
	case errors.Is(err, authcore.ErrInvalidToken):
		return authcore.ErrInvalidToken.Error()
	default:
		return err.Error()
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "http.request.error", "path", r.URL.Path, "error", err)
	}
	if wait := authcore.RetryAfterOf(err); wait > 0 {
		setRetryAfter(w, wait)
	}
	writeStatus(w, status, publicMessage(err, status))
}

// setRetryAfter writes whole seconds, rounded up.
func setRetryAfter(w http.ResponseWriter, wait time.Duration) {
	secs := int64((wait + time.Second - 1) / time.Second)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}

func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorBody{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
	})
}

// envelope wraps successful responses.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
