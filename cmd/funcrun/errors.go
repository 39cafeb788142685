package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/pflag"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/functions"
	"github.com/rhuss/funcrun/pkg/interpreter"
)

// Exit statuses.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitNotFound    = 3
	exitConflict    = 4
	exitUnavailable = 5
)

// errRunFailed reports a run whose result was already written to stdout
// with its error set.
var errRunFailed = errors.New("run failed")

// finish writes err to stderr as an error response and returns the exit
// status for it.
func (c *cli) finish(err error) int {
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return exitOK
	case errors.Is(err, errRunFailed):
		return exitFailure
	}

	apiErr := toAPIError(err)
	if encErr := writeJSON(c.stderr, api.ErrorResponse{Error: apiErr}); encErr != nil {
		return exitFailure
	}
	return exitCode(apiErr)
}

// toAPIError classifies err by the sentinel errors of the function
// registry and the interpreter.
func toAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, functions.ErrNotFound):
		return api.NewNotFoundError(err.Error())
	case errors.Is(err, functions.ErrConflict):
		return api.NewConflictError(err.Error())
	case errors.Is(err, functions.ErrValidation):
		return api.NewInvalidRequestError("", err.Error())
	case errors.Is(err, interpreter.ErrServiceUnavailable):
		return api.NewUnavailableError(err.Error())
	case interpreter.IsPrecondition(err):
		return api.NewInvalidRequestError("", err.Error())
	default:
		return api.NewServerError(err.Error())
	}
}

func exitCode(apiErr *api.APIError) int {
	switch apiErr.Type {
	case api.ErrorTypeInvalidRequest:
		return exitUsage
	case api.ErrorTypeNotFound:
		return exitNotFound
	case api.ErrorTypeConflict:
		return exitConflict
	case api.ErrorTypeUnavailable:
		return exitUnavailable
	default:
		return exitFailure
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
