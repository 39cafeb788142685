package interpreter

import "github.com/rhuss/funcrun/pkg/api"

// RunCodeTool is the logical name of the interpreter operation exposed by
// every code interpreter MCP server.
const RunCodeTool = "run_code"

// CodeExecuteReq is the input to a single run.
type CodeExecuteReq struct {
	// FunName is the entry point used when the code defines no run().
	FunName string `json:"funName"`

	// Deps are pip requirement specifiers installed before the code runs.
	Deps []string `json:"deps,omitempty"`

	// EncodedCode is the base64-encoded Python source.
	EncodedCode string `json:"encodedCode"`

	// EncodedJSONParams is an optional base64-encoded JSON object passed to
	// the entry point as keyword arguments.
	EncodedJSONParams string `json:"encodedJsonParams,omitempty"`

	// Server overrides the configured default interpreter for this run.
	Server *api.ServerRef `json:"server,omitempty"`
}

// CodeAssembleAttributes carries the already-encoded pieces of a program.
// Deps and UserCode are JSON literals, which Python reads as list and str
// literals. Params is the decoded parameter object rendered as a Python
// dict literal, empty when the run has no parameters.
type CodeAssembleAttributes struct {
	Name     string
	Deps     string
	UserCode string
	Params   string
}

// CallToolResponse is the raw envelope returned by the tool executor.
type CallToolResponse struct {
	IsError bool   `json:"isError"`
	Content string `json:"content"`
}

// InterpreterError describes an exception raised inside the interpreter.
type InterpreterError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

// InterpreterResult is the nested envelope describing what the program
// produced. The fields are not mutually exclusive.
type InterpreterResult struct {
	Stdout  []string          `json:"stdout"`
	Stderr  []string          `json:"stderr"`
	Results []string          `json:"results"`
	Error   *InterpreterError `json:"error"`
}

// ErrorCode classifies a remote failure.
type ErrorCode string

const (
	// CodeError is reported when the tool call or the interpreter raised.
	CodeError ErrorCode = "ERROR"
	// CodeStdError is reported when the program wrote to stderr.
	CodeStdError ErrorCode = "STD_ERROR"
	// CodeUnexpectedResult is reported for outputs other than stdout.
	CodeUnexpectedResult ErrorCode = "UNEXPECTED_RESULT"
	// CodeInternalError is reported when nothing usable came back.
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// CodeExecError is the structured error attached to a failed result.
type CodeExecError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Trace   any       `json:"trace,omitempty"`
}

// CodeExecResult is the normalized outcome of a run.
type CodeExecResult struct {
	FunctionOutput any            `json:"function_output,omitempty"`
	UserStdout     *string        `json:"user_stdout,omitempty"`
	Error          *CodeExecError `json:"error,omitempty"`
}

// Failed reports whether the interpreter reported an error.
func (r *CodeExecResult) Failed() bool {
	return r != nil && r.Error != nil
}

// Outcome returns the error code of a failed result, or "SUCCESS".
func (r *CodeExecResult) Outcome() string {
	if r.Failed() {
		return string(r.Error.Code)
	}
	return "SUCCESS"
}
