package util

import (
	"errors"
	"fmt"
)

// ErrorKind 稳定的错误类别，对外暴露给客户端
type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindUnavailable          ErrorKind = "unavailable"
	KindAttemptLimitExceeded ErrorKind = "attempt_limit_exceeded"
	KindForbidden            ErrorKind = "forbidden"
	KindAlreadySubmitted     ErrorKind = "already_submitted"
	KindTransientConflict    ErrorKind = "transient_conflict"
	KindValidation           ErrorKind = "validation"
	KindUnauthorized         ErrorKind = "unauthorized"
	KindRateLimited          ErrorKind = "rate_limited"
	KindInternal             ErrorKind = "internal"
)

// AppError 业务错误。Err 仅用于日志，不返回给客户端
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按类别匹配，使 errors.Is(err, ErrNotFound) 对任意 not_found 错误成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound             = &AppError{Kind: KindNotFound, Message: "resource not found"}
	ErrUnavailable          = &AppError{Kind: KindUnavailable, Message: "quiz is not available"}
	ErrAttemptLimitExceeded = &AppError{Kind: KindAttemptLimitExceeded, Message: "maximum attempts reached"}
	ErrForbidden            = &AppError{Kind: KindForbidden, Message: "permission denied"}
	ErrAlreadySubmitted     = &AppError{Kind: KindAlreadySubmitted, Message: "attempt already submitted"}
	ErrTransientConflict    = &AppError{Kind: KindTransientConflict, Message: "could not start attempt, please retry"}
	ErrValidation           = &AppError{Kind: KindValidation, Message: "invalid request"}
	ErrUnauthorized         = &AppError{Kind: KindUnauthorized, Message: "unauthorized"}
)

func NewError(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFoundError(format string, args ...interface{}) *AppError {
	return NewError(KindNotFound, format, args...)
}

func UnavailableError(format string, args ...interface{}) *AppError {
	return NewError(KindUnavailable, format, args...)
}

func ForbiddenError(format string, args ...interface{}) *AppError {
	return NewError(KindForbidden, format, args...)
}

func ValidationError(format string, args ...interface{}) *AppError {
	return NewError(KindValidation, format, args...)
}

// AttemptLimitError 消息中包含已用次数与上限，例如 "1 of 1"
func AttemptLimitError(used, limit int) *AppError {
	return NewError(KindAttemptLimitExceeded, "maximum attempts reached (%d of %d)", used, limit)
}

// KindOf 非 AppError 一律视为 internal
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
