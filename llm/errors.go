package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind - класс отказа генератора
type ErrorKind int

const (
	KindUpstream ErrorKind = iota
	KindAuth
	KindTimeout
	KindNetwork
	KindEmpty
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindEmpty:
		return "empty"
	case KindRejected:
		return "rejected"
	default:
		return "upstream"
	}
}

// Error - ошибка обращения к LLM API
type Error struct {
	Kind   ErrorKind
	Status int // HTTP-статус, если ответ был получен
	Err    error
}

func (e *Error) Error() string {
	msg := "llm: " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable - имеет ли смысл повторить запрос позже
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindUpstream:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	}
	return false
}

// UserMessage - текст для оператора дашборда
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindAuth:
		return "Error de autenticación con el servicio de IA: verifica la API key"
	case KindTimeout, KindNetwork:
		return "Error de conexión con el servicio de IA: intenta nuevamente"
	default:
		return "Error generando mensaje de seguimiento"
	}
}

// KindOf возвращает вид ошибки и признак того, что это *Error
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsTimeout - удобная проверка для слоя HTTP
func IsTimeout(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindTimeout
}

func transportError(err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Kind: KindTimeout, Err: err}
	default:
		return &Error{Kind: KindNetwork, Err: err}
	}
}

func statusError(status int, body string) *Error {
	err := fmt.Errorf("unexpected response: %s", body)
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Status: status, Err: err}
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Status: status, Err: err}
	default:
		return &Error{Kind: KindUpstream, Status: status, Err: err}
	}
}
