package tools

import (
	"context"
)

// ToolKind classifies how a tool is hosted and executed.
type ToolKind int

const (
	// ToolKindFunction is a client-executed tool whose execution is
	// delegated back to the caller.
	ToolKindFunction ToolKind = iota

	// ToolKindMCP is a tool served by a remote MCP server.
	ToolKindMCP

	// ToolKindBuiltin is a tool implemented in-process by a
	// registry.FunctionProvider.
	ToolKindBuiltin
)

// String returns the kind's name.
func (k ToolKind) String() string {
	switch k {
	case ToolKindFunction:
		return "function"
	case ToolKindMCP:
		return "mcp"
	case ToolKindBuiltin:
		return "builtin"
	default:
		return "unknown"
	}
}

// ToolExecutor executes tool calls.
type ToolExecutor interface {
	// Kind returns the type of tools this executor handles.
	Kind() ToolKind

	// CanExecute checks if this executor can handle the given tool name.
	CanExecute(toolName string) bool

	// Execute runs the tool and returns the result. Failures the caller
	// should see are reported through ToolResult.IsError; a non-nil error
	// means the executor itself failed.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// ToolCall represents a request to invoke a tool.
type ToolCall struct {
	// ID is the unique call identifier (e.g., "call_abc123").
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string

	// Output is the tool output content (text).
	Output string

	// IsError indicates that the output is an error message.
	IsError bool
}
