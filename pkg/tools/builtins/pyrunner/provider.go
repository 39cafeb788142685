// Package pyrunner exposes the remote Python function runner as native
// tools: py_fun_tool runs inline base64 code, run_stored_function runs a
// function from the function registry by name.
package pyrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/functions"
	"github.com/rhuss/funcrun/pkg/interpreter"
	"github.com/rhuss/funcrun/pkg/tools"
	"github.com/rhuss/funcrun/pkg/tools/registry"
)

// Tool names served by the provider.
const (
	ToolRunCode           = "py_fun_tool"
	ToolRunStoredFunction = "run_stored_function"
)

// DefaultFunName is the entry point used when a call names none.
const DefaultFunName = "run"

// Ensure Provider implements FunctionProvider.
var _ registry.FunctionProvider = (*Provider)(nil)

// Provider runs Python through an interpreter.CodeRunner.
type Provider struct {
	runner    interpreter.CodeRunner
	functions *functions.Service
	sink      interpreter.EventSink
	logger    *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithFunctions enables run_stored_function backed by svc.
func WithFunctions(svc *functions.Service) Option {
	return func(p *Provider) {
		p.functions = svc
	}
}

// WithEventSink forwards the progress events of every run to sink.
func WithEventSink(sink interpreter.EventSink) Option {
	return func(p *Provider) {
		p.sink = sink
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Provider. A nil runner behaves like interpreter.NoOpRunner.
func New(runner interpreter.CodeRunner, opts ...Option) *Provider {
	if runner == nil {
		runner = interpreter.NoOpRunner{}
	}
	p := &Provider{runner: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runCodeArgs are the arguments of py_fun_tool.
type runCodeArgs struct {
	EncodedCode   string         `json:"encodedCode"`
	EncodedParams string         `json:"encodedParams"`
	FunName       string         `json:"funName"`
	Deps          []string       `json:"deps"`
	Server        *api.ServerRef `json:"server"`
}

// runStoredArgs are the arguments of run_stored_function.
type runStoredArgs struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "pyrunner"
}

// Tools returns the tool definitions for this provider.
func (p *Provider) Tools() []api.ToolDefinition {
	defs := []api.ToolDefinition{{
		Type:        "function",
		Name:        ToolRunCode,
		Description: "Run a Python function on the remote code interpreter. The code must define run() or a function named funName; params are passed as keyword arguments.",
		Parameters: mustSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"encodedCode": map[string]any{
					"type":        "string",
					"description": "Base64-encoded Python source",
				},
				"encodedParams": map[string]any{
					"type":        "string",
					"description": "Base64-encoded JSON object of keyword arguments",
				},
				"funName": map[string]any{
					"type":        "string",
					"description": "Entry point used when the code defines no run()",
				},
				"deps": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "pip requirements installed before the code runs",
				},
				"server": map[string]any{
					"type":        "object",
					"description": "Code interpreter MCP server to use instead of the configured one",
					"properties": map[string]any{
						"serverLabel": map[string]any{"type": "string"},
						"serverUrl":   map[string]any{"type": "string"},
						"apiKey":      map[string]any{"type": "string"},
					},
				},
			},
			"required": []string{"encodedCode"},
		}),
	}}

	if p.functions != nil {
		defs = append(defs, api.ToolDefinition{
			Type:        "function",
			Name:        ToolRunStoredFunction,
			Description: "Run a function stored in the function registry by name.",
			Parameters: mustSchema(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Registered function name",
					},
					"params": map[string]any{
						"type":        "object",
						"description": "Keyword arguments for run()",
					},
				},
				"required": []string{"name"},
			}),
		})
	}
	return defs
}

// CanExecute returns true for the tools this provider serves.
func (p *Provider) CanExecute(toolName string) bool {
	switch toolName {
	case ToolRunCode:
		return true
	case ToolRunStoredFunction:
		return p.functions != nil
	}
	return false
}

// Execute runs a tool call. Invalid arguments, precondition failures and
// transport errors are reported as error results. A run whose code failed
// remotely returns the CodeExecResult JSON with IsError set.
func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var (
		res *interpreter.CodeExecResult
		err error
	)

	switch {
	case call.Name == ToolRunCode:
		var args runCodeArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResult(call, fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		res, err = p.runner.RunCode(ctx, args.request(), p.sink)

	case call.Name == ToolRunStoredFunction && p.functions != nil:
		var args runStoredArgs
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errorResult(call, fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.Name == "" {
			return errorResult(call, "name is required"), nil
		}
		res, err = p.functions.Execute(ctx, args.Name, args.Params, p.sink)

	default:
		return errorResult(call, fmt.Sprintf("unsupported tool %q", call.Name)), nil
	}

	if err != nil {
		p.logger.Warn("python run failed",
			"call_id", call.ID,
			"tool", call.Name,
			"precondition", interpreter.IsPrecondition(err),
			"error", err.Error(),
		)
		return errorResult(call, err.Error()), nil
	}

	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding run result: %w", err)
	}
	return &tools.ToolResult{
		CallID:  call.ID,
		Output:  string(out),
		IsError: res.Failed(),
	}, nil
}

func (a runCodeArgs) request() interpreter.CodeExecuteReq {
	name := a.FunName
	if name == "" {
		name = DefaultFunName
	}
	return interpreter.CodeExecuteReq{
		FunName:           name,
		Deps:              a.Deps,
		EncodedCode:       a.EncodedCode,
		EncodedJSONParams: a.EncodedParams,
		Server:            a.Server,
	}
}

// Collectors returns nil; run metrics live in pkg/observability.
func (p *Provider) Collectors() []prometheus.Collector {
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

func errorResult(call tools.ToolCall, msg string) *tools.ToolResult {
	return &tools.ToolResult{CallID: call.ID, Output: msg, IsError: true}
}

func mustSchema(v map[string]any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("pyrunner: encoding tool schema: %v", err))
	}
	return b
}
