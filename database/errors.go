package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind - класс ошибки хранилища, на который опирается вызывающий код
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnavailable
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error - ошибка хранилища с тегом вида, не зависящая от драйвера
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по виду, чтобы errors.Is(err, ErrNotFound) работал для любой операции
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrInvalid     = &Error{Kind: KindInvalid}
)

// KindOf возвращает вид ошибки хранилища или KindUnknown
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func notFound(op string) error {
	return &Error{Kind: KindNotFound, Op: op}
}

// wrapErr переводит ошибки database/sql и pgx в *Error
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}

	kind := KindUnknown
	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		kind = KindNotFound
	case errors.As(err, &pgErr):
		kind = kindFromSQLState(pgErr.Code)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sql.ErrConnDone),
		errors.As(err, &netErr):
		kind = KindUnavailable
	case pgconn.SafeToRetry(err), pgconn.Timeout(err):
		kind = KindUnavailable
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func kindFromSQLState(code string) ErrorKind {
	switch {
	case code == "23505": // unique_violation
		return KindConflict
	case code == "23503": // foreign_key_violation: владелец не существует
		return KindNotFound
	case code == "23514", code == "23502", len(code) == 5 && code[:2] == "22":
		return KindInvalid
	case len(code) == 5 && (code[:2] == "08" || code[:2] == "57" || code[:2] == "53"):
		return KindUnavailable
	default:
		return KindUnknown
	}
}
