package interpreter

import (
	"encoding/json"
	"fmt"
)

const (
	msgError            = "code interpreter responded with error"
	msgStderr           = "code interpreter responded with stderr"
	msgUnexpectedResult = "code interpreter responded with unexpected result"
	msgInternal         = "unable to handle response"
)

// Extract maps a raw run_code tool response onto a CodeExecResult.
//
// The checks run in a fixed order and the first match wins, because the
// interpreter may fill several fields at once:
//
//  1. envelope isError: ERROR with the envelope content as trace
//  2. exactly one stdout line: the program's JSON result
//  3. interpreter error: ERROR with the error object as trace
//  4. non-empty stderr: STD_ERROR
//  5. non-empty results: UNEXPECTED_RESULT
//  6. anything else: INTERNAL_ERROR with the whole result as trace
//
// JSON that cannot be decoded, at either envelope level or in the single
// stdout line, is returned as an error wrapping [ErrMalformedResponse].
func Extract(raw string) (*CodeExecResult, error) {
	var env CallToolResponse
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: tool response: %w", ErrMalformedResponse, err)
	}
	if env.IsError {
		return failure(CodeError, msgError, env.Content), nil
	}

	var res InterpreterResult
	if err := json.Unmarshal([]byte(env.Content), &res); err != nil {
		return nil, fmt.Errorf("%w: interpreter result: %w", ErrMalformedResponse, err)
	}
	return ExtractInterpreterResult(&res)
}

// ExtractInterpreterResult applies steps 2 to 6 of [Extract] to an already
// decoded interpreter envelope.
func ExtractInterpreterResult(res *InterpreterResult) (*CodeExecResult, error) {
	switch {
	case len(res.Stdout) == 1:
		return parseProgramOutput(res.Stdout[0])
	case res.Error != nil:
		return failure(CodeError, msgError, res.Error), nil
	case len(res.Stderr) > 0:
		return failure(CodeStdError, msgStderr, res.Stderr), nil
	case len(res.Results) > 0:
		return failure(CodeUnexpectedResult, msgUnexpectedResult, res.Results), nil
	default:
		return failure(CodeInternalError, msgInternal, res), nil
	}
}

// parseProgramOutput decodes the single JSON line printed by an assembled
// program. JSON without a function_output key is kept under
// function_output.error rather than treated as a failure.
func parseProgramOutput(line string) (*CodeExecResult, error) {
	var parsed any
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return nil, fmt.Errorf("%w: program output: %w", ErrMalformedResponse, err)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return &CodeExecResult{FunctionOutput: map[string]any{"error": parsed}}, nil
	}
	out, ok := obj["function_output"]
	if !ok {
		return &CodeExecResult{FunctionOutput: map[string]any{"error": parsed}}, nil
	}

	result := &CodeExecResult{FunctionOutput: out}
	if s, ok := obj["user_stdout"].(string); ok {
		result.UserStdout = &s
	}
	return result, nil
}

func failure(code ErrorCode, message string, trace any) *CodeExecResult {
	return &CodeExecResult{
		Error: &CodeExecError{
			Code:    code,
			Message: message,
			Trace:   trace,
		},
	}
}
