package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/baharkarakas/ledger-backend/internal/api/validate"
	"github.com/baharkarakas/ledger-backend/internal/models"
)

type APIError struct {
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Message: msg,
		Code:    code,
		Details: details,
	})
}

// WriteServiceError maps a service error to its status. Storage faults and
// unknown errors are reported without detail.
func WriteServiceError(w http.ResponseWriter, err error) {
	code := models.Code(err)
	status := StatusFor(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	var details interface{}
	var fields validate.Errs
	if errors.As(err, &fields) {
		msg = "invalid input"
		details = fields
	}
	if errors.Is(err, models.ErrContention) {
		w.Header().Set("Retry-After", "1")
	}
	WriteError(w, status, code, msg, details)
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientBalance), errors.Is(err, models.ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrContention), errors.Is(err, models.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrIncorrectCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
