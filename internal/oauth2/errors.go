package oauth2

import (
	"fmt"
	"net/http"
)

// ErrorCode son los códigos de error RFC 6749 / OIDC que devolvemos al
// caller, más two_factor_required que es propio de esta casa.
type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrLoginRequired           ErrorCode = "login_required"
	ErrTwoFactorRequired       ErrorCode = "two_factor_required"
	ErrServerError             ErrorCode = "server_error"
)

// Error es un resultado esperado del protocolo, no un bug: en /authorize se
// devuelve como parámetros del redirect al client, en /token como body JSON
// con el status correspondiente.
type Error struct {
	Code        ErrorCode
	Description string
	// State del request original, para ecoarlo en el redirect.
	State string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Description
}

// Status mapea el código al HTTP status de los endpoints JSON.
func (e *Error) Status() int {
	switch e.Code {
	case ErrInvalidClient:
		return http.StatusUnauthorized
	case ErrServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// FatalError indica que ni siquiera podemos confiar en el client_id o la
// redirect_uri: jamás se redirige de vuelta al client, se renderiza en la
// página de error propia.
type FatalError struct {
	Code        ErrorCode
	Description string
}

func (e *FatalError) Error() string {
	return "fatal: " + string(e.Code) + ": " + e.Description
}

func Fatalf(code ErrorCode, format string, args ...any) *FatalError {
	return &FatalError{Code: code, Description: fmt.Sprintf(format, args...)}
}
