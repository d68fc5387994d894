package apierror

import (
	"fmt"
	"net/http"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// Unauthorized covers bad credentials and invalid, expired or revoked tokens
// alike, so a response never reveals which half of a credential pair was wrong.
func Unauthorized(message string) *APIError {
	return New("UNAUTHORIZED", message, "", http.StatusUnauthorized)
}

// Validation carries the offending field name in Details.
func Validation(message string, field string) *APIError {
	return New("VALIDATION_ERROR", message, field, http.StatusUnprocessableEntity)
}

func Duplicate(message string, details string) *APIError {
	return New("ALREADY_EXISTS", message, details, http.StatusConflict)
}

func NotFound(message string, details string) *APIError {
	return New("NOT_FOUND", message, details, http.StatusNotFound)
}
