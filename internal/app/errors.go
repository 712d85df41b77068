package app

import (
	"fmt"
	"net/http"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeEmailNotAllowed     = "EMAIL_NOT_ALLOWED"
	CodeInvalidSecurityCode = "INVALID_SECURITY_CODE"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeEmailTaken          = "EMAIL_TAKEN"
	CodeInvalidResetToken   = "INVALID_RESET_TOKEN"
	CodeNotFound            = "NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUnavailable         = "UNAVAILABLE"
	CodeServerError         = "SERVER_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// validationError carries per-field messages keyed by the JSON field name.
func validationError(message string, fields map[string]string) *DomainError {
	if len(fields) == 0 {
		return domainError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
	}
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, map[string]any{"fields": fields})
}

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, what+" not found", nil)
}

// serverError hides the underlying cause from the caller; it is logged where
// it happens.
func serverError(action string) *DomainError {
	return domainError(http.StatusInternalServerError, CodeServerError, "Failed to "+action+".", nil)
}
