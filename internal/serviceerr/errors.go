package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeUnknown                  Code = "unknown"
	CodeNotFound                 Code = "not_found"
	CodeConflict                 Code = "conflict"
	CodeInvalidRequest           Code = "invalid_request"
	CodeReauthenticationRequired Code = "reauthentication_required"
	CodeHTTP                     Code = "http_error"
	CodeNetwork                  Code = "network_error"
	CodeDecode                   Code = "decode_error"
	CodeUnsuccessful             Code = "unsuccessful_response"
)

// Error is the error shape surfaced to stores and to the BFF server.
// StatusCode holds the upstream HTTP status for CodeHTTP errors.
type Error struct {
	Err         Code
	Description string
	StatusCode  int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// Is matches any *Error carrying the same code, so wrapped errors with a
// request specific description still satisfy errors.Is against the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Err == e.Err
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeReauthenticationRequired:
		return http.StatusUnauthorized
	case CodeHTTP:
		if e.StatusCode >= http.StatusBadRequest {
			return e.StatusCode
		}

		return http.StatusBadGateway
	case CodeNetwork, CodeDecode, CodeUnsuccessful:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrUnknown                  = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrNotFound                 = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConflict                 = &Error{Err: CodeConflict, Description: "already exists"}
	ErrInvalidRequest           = &Error{Err: CodeInvalidRequest}
	ErrReauthenticationRequired = &Error{Err: CodeReauthenticationRequired, Description: "reauthentication required"}
	ErrHTTP                     = &Error{Err: CodeHTTP, Description: "request failed"}
	ErrNetwork                  = &Error{Err: CodeNetwork, Description: "network failure"}
	ErrDecode                   = &Error{Err: CodeDecode, Description: "malformed response"}
	ErrUnsuccessful             = &Error{Err: CodeUnsuccessful, Description: "server reported failure"}
)

// New returns an error for the given code with a request specific description.
func New(code Code, description string) *Error {
	return &Error{Err: code, Description: description}
}

// HTTP returns an upstream HTTP error carrying the status and server message.
func HTTP(status int, description string) *Error {
	return &Error{Err: CodeHTTP, Description: description, StatusCode: status}
}

// Message extracts a user presentable message from err. Errors of this package
// yield their description, anything else its Error() text.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) && e.Description != "" {
		return e.Description
	}

	return err.Error()
}
