// Package interpreter runs user-supplied Python functions on a remote MCP
// code interpreter.
//
// A run has four steps. [Assemble] wraps the decoded user source,
// dependencies and parameters into a self-contained Python program. The
// [Runner] emits one "executing" [api.ProgressEvent] carrying that program,
// resolves the interpreter's qualified run_code tool and calls it exactly
// once. [Extract] then maps the raw tool response onto a [CodeExecResult].
//
// Local precondition failures (missing function name, bad base64, no
// target server, unknown tool) are returned as Go errors before anything
// is sent. Failures reported by the interpreter are never Go errors: they
// come back in [CodeExecResult.Error] tagged with one of the four
// [ErrorCode] values.
//
// The program text is never executed locally.
package interpreter
