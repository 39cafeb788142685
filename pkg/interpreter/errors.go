package interpreter

import "errors"

// Sentinel errors for local precondition failures. They are returned
// before any remote call is made.
var (
	ErrMissingFunctionName = errors.New("function name is required")
	ErrMissingCode         = errors.New("encoded code is required")
	ErrInvalidCode         = errors.New("encoded code is not valid base64")
	ErrInvalidParams       = errors.New("params must be a JSON object")
	ErrNoTargetServer      = errors.New("no code interpreter server configured")
	ErrToolNotFound        = errors.New("code interpreter tool not found")
	ErrServerConflict      = errors.New("server label is bound to a different interpreter")
	ErrServiceUnavailable  = errors.New("code interpreter is not enabled")
)

// ErrMalformedResponse wraps JSON errors raised while decoding a tool
// response envelope. It signals a protocol break rather than an execution
// outcome.
var ErrMalformedResponse = errors.New("malformed code interpreter response")
