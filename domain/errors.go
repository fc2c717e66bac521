package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode representa un código de error del dominio del relay.
type ErrorCode string

// Códigos de error estándar
const (
	// ErrNoError indica éxito (sin error)
	ErrNoError ErrorCode = "NO_ERROR"

	// Errores de admisión
	ErrAuthFailed ErrorCode = "AUTH_FAILED"

	// Errores de routing
	ErrNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"
	ErrTimeout         ErrorCode = "TIMEOUT"
	ErrSuperseded      ErrorCode = "SUPERSEDED"

	// Errores de validación
	ErrMissingRequiredPriceField ErrorCode = "MISSING_REQUIRED_PRICE_FIELD"
	ErrMalformedContract         ErrorCode = "MALFORMED_CONTRACT"
	ErrUnknownOrderType          ErrorCode = "UNKNOWN_ORDER_TYPE"
	ErrInvalidQuantity           ErrorCode = "INVALID_QUANTITY"

	// Errores de ingestion
	ErrStaleSnapshot ErrorCode = "STALE_SNAPSHOT" // advisory, no fatal
	ErrClockSkew     ErrorCode = "CLOCK_SKEW"

	// Errores de sistema/broker
	ErrBrokerRejected ErrorCode = "BROKER_REJECTED" // relayed verbatim
	ErrUnknown        ErrorCode = "UNKNOWN"
)

// RelayError representa un error del dominio del relay con contexto.
type RelayError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implementa la interfaz error.
func (e *RelayError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implementa la interfaz errors.Unwrap.
func (e *RelayError) Unwrap() error {
	return e.Wrapped
}

// WithDetail agrega un detalle al error.
func (e *RelayError) WithDetail(key string, value interface{}) *RelayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewError crea un nuevo RelayError.
//
// Example:
//
//	err := domain.NewError(domain.ErrNoActiveSession, "no session for user 42")
func NewError(code ErrorCode, message string) *RelayError {
	return &RelayError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError envuelve un error existente con contexto del relay.
func WrapError(code ErrorCode, message string, wrapped error) *RelayError {
	return &RelayError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: wrapped,
	}
}

// CodeOf extrae el ErrorCode de un error, ErrUnknown si no es un RelayError.
func CodeOf(err error) ErrorCode {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrUnknown
}

// IsRetryable indica si un error es retriable por el caller.
//
// Las operaciones que mutan órdenes son at-most-once: el relay nunca reintenta
// por su cuenta; este helper es para lecturas de market data.
func IsRetryable(code ErrorCode) bool {
	switch code {
	case ErrTimeout, ErrNoActiveSession:
		return true
	default:
		return false
	}
}

// HTTPStatus mapea un ErrorCode al status HTTP de la superficie externa.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrNoError:
		return http.StatusOK
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrNoActiveSession:
		return http.StatusServiceUnavailable
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrSuperseded:
		return http.StatusConflict
	case ErrMissingRequiredPriceField, ErrUnknownOrderType, ErrInvalidQuantity:
		return http.StatusUnprocessableEntity
	case ErrMalformedContract:
		return http.StatusBadRequest
	case ErrStaleSnapshot:
		return http.StatusConflict
	case ErrClockSkew:
		return http.StatusBadRequest
	case ErrBrokerRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
