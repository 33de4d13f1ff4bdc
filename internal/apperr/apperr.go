package apperr

import (
	"errors"
	"fmt"
)

// Code — код типизированной бизнес-ошибки. Ожидаемые отказы
// (нет сущности, нет прав, квота, недопустимое перемещение)
// возвращаются наверх как значения, а не паника/исключение;
// соответствие HTTP-статусу задаётся один раз на границе транспорта.
type Code string

const (
	CodeNotFound      Code = "not_found"
	CodeForbidden     Code = "forbidden"
	CodeConflict      Code = "conflict"
	CodeInvalidMove   Code = "invalid_move"
	CodeQuotaExceeded Code = "quota_exceeded"
	CodeValidation    Code = "validation_failed"
	CodeStorage       Code = "storage_failed"
	CodeInternal      Code = "internal"
)

// Error несёт код, человекочитаемое сообщение и опциональную причину.
type Error struct {
	Code    Code
	Message string
	cause   error
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

func newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(CodeNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(CodeForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(CodeConflict, format, args...)
}

func InvalidMove(format string, args ...interface{}) *Error {
	return newf(CodeInvalidMove, format, args...)
}

func QuotaExceeded(format string, args ...interface{}) *Error {
	return newf(CodeQuotaExceeded, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return newf(CodeValidation, format, args...)
}

// Storage оборачивает ошибку обхода к хранилищу объектов. Исходный
// текст ошибки наружу не переписывается, он остаётся в причине.
func Storage(err error, format string, args ...interface{}) *Error {
	e := newf(CodeStorage, format, args...)
	e.cause = err
	return e
}

func Internal(err error, format string, args ...interface{}) *Error {
	e := newf(CodeInternal, format, args...)
	e.cause = err
	return e
}

// CodeOf извлекает код из цепочки ошибок; всё нераспознанное
// считается внутренней ошибкой.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode сообщает, несёт ли цепочка ошибок данный код.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Expected отделяет ожидаемый бизнес-отказ от инфраструктурного
// сбоя: первые не логируются как ошибки.
func Expected(err error) bool {
	switch CodeOf(err) {
	case CodeStorage, CodeInternal:
		return false
	default:
		return err != nil
	}
}
