// Package errs defines the coded application errors shared across the
// webhook intake, the workflow engine, and the HTTP surface. Codes group by
// subsystem: E1xx webhook and input validation, E2xx vector store, E3xx AI
// generation, E4xx GitHub, E5xx system and infrastructure.
package errs

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidSignature = "E101"
	CodeInvalidPayload   = "E102"
	CodeMissingLabel     = "E103"
	CodeDuplicateWebhook = "E104"

	CodeVectorQuery = "E201"

	CodeInternal          = "E300"
	CodeGenerationFailed  = "E301"
	CodeGenerationTimeout = "E302"

	CodeBranchExists = "E402"
	CodeRateLimit    = "E405"
	CodeGitHubAPI    = "E406"

	CodeConnection    = "E501"
	CodeConfiguration = "E502"
)

// Error is a coded application error. HTTPStatus is optional and carries
// the upstream HTTP status when the error originated from a remote API,
// used for retry classification.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping a cause. A nil cause yields nil.
func Wrap(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// WithStatus returns a copy of the error annotated with an HTTP status.
func (e *Error) WithStatus(status int) *Error {
	c := *e
	c.HTTPStatus = status
	return &c
}

// Code extracts the error code from err, walking the wrap chain. Errors
// without a code classify as CodeInternal.
func Code(err error) string {
	var apperr *Error
	if errors.As(err, &apperr) {
		return apperr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}

// Status extracts the HTTP status annotation from err, or 0.
func Status(err error) int {
	var apperr *Error
	if errors.As(err, &apperr) {
		return apperr.HTTPStatus
	}
	return 0
}

// Retryable reports whether an error is eligible for the generation retry
// protocol. Only generation failures and timeouts retry; everything else
// is terminal for the current run.
func Retryable(err error) bool {
	switch Code(err) {
	case CodeGenerationFailed, CodeGenerationTimeout:
		return true
	}
	return false
}
