package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/ticket-intake/internal/codec"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches DomainErrors by code, so errors.Is(err, ErrNotFound) works for any resource.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

const (
	CodeValidation = "VALIDATION_FAILED"
	CodeNotFound   = "NOT_FOUND"
	CodeDecode     = "DECODE_FAILED"
	CodeCrypto     = "CRYPTO_FAILED"
	CodeInternal   = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons.
var (
	ErrValidation = &DomainError{Code: CodeValidation}
	ErrNotFound   = &DomainError{Code: CodeNotFound}
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, codec.ErrCrypto) {
		return &DomainError{Code: CodeCrypto, Message: "stored tickets could not be decrypted", HTTPStatus: http.StatusInternalServerError, Err: err}
	}
	if errors.Is(err, codec.ErrDecode) {
		return &DomainError{Code: CodeDecode, Message: "stored tickets could not be decoded", HTTPStatus: http.StatusInternalServerError, Err: err}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
