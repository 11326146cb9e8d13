package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeValidation       ErrorType = "VALIDATION"
	ErrorTypeInternal         ErrorType = "INTERNAL"
	ErrorTypeMalformedArchive ErrorType = "MALFORMED_ARCHIVE"
	ErrorTypePartialDirectory ErrorType = "PARTIAL_DIRECTORY_RESOLUTION"
	ErrorTypeExportFailed     ErrorType = "EXPORT_FAILED"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IsType reports whether any *Error in err's chain carries the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// TypeOf returns the tag of the first *Error in err's chain, or INTERNAL.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return http.StatusInternalServerError
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Internal(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: message,
		Code:    http.StatusInternalServerError,
		Err:     cause,
	}
}

func MalformedArchive(cause error) *Error {
	return &Error{
		Type:    ErrorTypeMalformedArchive,
		Message: "archive cannot be parsed",
		Code:    http.StatusUnprocessableEntity,
		Err:     cause,
	}
}

// PartialDirectory reports the children of dir that could not be resolved.
func PartialDirectory(dir string, failed []string) *Error {
	return &Error{
		Type:    ErrorTypePartialDirectory,
		Message: fmt.Sprintf("%d entries under %s could not be resolved", len(failed), dir),
		Code:    http.StatusMultiStatus,
		Details: failed,
	}
}

func ExportFailed(cause error) *Error {
	return &Error{
		Type:    ErrorTypeExportFailed,
		Message: "export failed",
		Code:    http.StatusInternalServerError,
		Err:     cause,
	}
}
