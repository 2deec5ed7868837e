package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

// LoginRedirect is where a UI sends the user when the session is gone.
const LoginRedirect = "/login"

// responseObject is the result of a dashboard handler.
type responseObject interface {
	StatusCode() int
	visit(w http.ResponseWriter) error
}

type jsonResponse struct {
	status int
	body   any
}

func (r jsonResponse) StatusCode() int { return r.status }

func (r jsonResponse) visit(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.status)

	return json.NewEncoder(w).Encode(r.body)
}

type noContentResponse struct{}

func (noContentResponse) StatusCode() int { return http.StatusNoContent }

func (noContentResponse) visit(w http.ResponseWriter) error {
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type ErrorModel struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Redirect         string `json:"redirect,omitempty"`
}

func toErrorModel(err error) jsonResponse {
	var serviceErr *serviceerr.Error
	if !errors.As(err, &serviceErr) {
		serviceErr = serviceerr.ErrUnknown
	}

	model := ErrorModel{
		Error:            string(serviceErr.Err),
		ErrorDescription: serviceErr.Description,
	}
	if errors.Is(err, serviceerr.ErrReauthenticationRequired) {
		model = ErrorModel{
			Error:            string(serviceerr.CodeReauthenticationRequired),
			ErrorDescription: serviceerr.ErrReauthenticationRequired.Description,
			Redirect:         LoginRedirect,
		}
		return jsonResponse{status: http.StatusUnauthorized, body: model}
	}

	return jsonResponse{status: serviceErr.HTTPStatus(), body: model}
}

func newBadRequest(description string) jsonResponse {
	return jsonResponse{
		status: http.StatusBadRequest,
		body: ErrorModel{
			Error:            string(serviceerr.CodeInvalidRequest),
			ErrorDescription: description,
		},
	}
}
