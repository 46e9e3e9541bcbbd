package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code so the sentinels below work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

const (
	CodeEmptyName     = "VALIDATION_001"
	CodeEmptyDays     = "VALIDATION_002"
	CodeEmptyTimes    = "VALIDATION_003"
	CodeMalformedTime = "VALIDATION_004"
	CodeInvalidInput  = "VALIDATION_005"

	CodeNotFound = "GEN_001"
	CodeInternal = "GEN_003"

	CodeStoreIO    = "IO_001"
	CodeNotifierIO = "IO_002"
)

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrEmptyName     = &AppError{Code: CodeEmptyName, Message: "medication name is required"}
	ErrEmptyDays     = &AppError{Code: CodeEmptyDays, Message: "select at least one day of the week"}
	ErrEmptyTimes    = &AppError{Code: CodeEmptyTimes, Message: "add at least one time"}
	ErrMalformedTime = &AppError{Code: CodeMalformedTime, Message: "malformed time"}
	ErrInvalidInput  = &AppError{Code: CodeInvalidInput, Message: "invalid input"}

	ErrUnauthorized = &AppError{Code: "AUTH_001", Message: "unauthorized"}

	ErrNotFound   = &AppError{Code: CodeNotFound, Message: "resource not found"}
	ErrInternal   = &AppError{Code: CodeInternal, Message: "internal error"}
	ErrStoreIO    = &AppError{Code: CodeStoreIO, Message: "record store call failed"}
	ErrNotifierIO = &AppError{Code: CodeNotifierIO, Message: "notifier call failed"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Validation builds an error with one of the VALIDATION_* codes.
func Validation(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// ExternalIO wraps a failed store or notifier call. The message should name the
// medication or trigger involved so a caller can retry by hand.
func ExternalIO(code string, cause error, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func IsValidation(err error) bool {
	code := GetCode(err)
	return len(code) > len("VALIDATION_") && code[:len("VALIDATION_")] == "VALIDATION_"
}

func IsNotFound(err error) bool {
	return GetCode(err) == CodeNotFound
}

func IsExternalIO(err error) bool {
	code := GetCode(err)
	return code == CodeStoreIO || code == CodeNotifierIO
}
