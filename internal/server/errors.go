package server

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/cv-tailor/internal/generation"
	"github.com/jonathan/cv-tailor/internal/types"
)

// HTTPStatus returns the status for an error returned by a generation component.
// Anything unrecognized is a server fault.
func HTTPStatus(err error) int {
	var reqErr *generation.RequestError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &reqErr), errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrDocumentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ResultStatus returns the status for a generation result. Deferred results are
// successful responses; the client finishes them with a second request.
func ResultStatus(result *types.GenerationResult) int {
	if result.Status != types.StatusFailed {
		return http.StatusOK
	}
	switch result.ErrorKind {
	case types.ErrConfiguration:
		return http.StatusUnprocessableEntity
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrConnection, types.ErrUpstream, types.ErrMalformedResponse,
		types.ErrParse, types.ErrValidation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error detail from 5xx responses.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
