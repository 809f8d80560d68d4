// Package apperr описывает типизированные ошибки бизнес-операций.
// Validation/Authorization/Conflict/NotFound завершают операцию и отдаются клиенту,
// Transient: сбой хранилища или сети.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindTransient Kind = iota
	KindValidation
	KindAuthorization
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "transient"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error { return newf(KindValidation, format, args...) }

func Forbiddenf(format string, args ...any) error { return newf(KindAuthorization, format, args...) }

func Conflictf(format string, args ...any) error { return newf(KindConflict, format, args...) }

func NotFoundf(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// Transient оборачивает ошибку хранилища/сети со стеком вызова.
func Transient(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Msg: msg, Err: errors.Wrap(err, msg)}
}

// KindOf возвращает вид ошибки; нетипизированные ошибки считаются Transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message: текст, пригодный для показа пользователю. Детали Transient не раскрываются.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}
