package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/tools"
)

// toolsCommand lists or calls the native tools. "list" also shows the MCP
// tools of the configured interpreter.
func (c *cli) toolsCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return api.NewInvalidRequestError("", "usage: funcrun tools list|call")
	}
	switch args[0] {
	case "list":
		return c.listTools(ctx, args[1:])
	case "call":
		return c.callTool(ctx, args[1:])
	default:
		return api.NewInvalidRequestError("", fmt.Sprintf("unknown tools command %q", args[0]))
	}
}

func (c *cli) listTools(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("tools list")
	if err := parseFlags(flags, args); err != nil {
		return err
	}

	a, err := c.setup(ctx, *configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	return writeJSON(c.stdout, map[string][]api.ToolDefinition{
		"native": a.registry.DiscoveredTools(),
		"mcp":    a.tools.Tools(),
	})
}

func (c *cli) callTool(ctx context.Context, args []string) error {
	flags, configPath := c.newFlagSet("tools call")
	arguments := flags.String("args", "{}", "JSON arguments of the call")
	if err := parseFlags(flags, args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return api.NewInvalidRequestError("tool", "exactly one tool name is required")
	}
	if !json.Valid([]byte(*arguments)) {
		return api.NewInvalidRequestError("args", "not valid JSON")
	}

	a, err := c.setup(ctx, *configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.registry.Execute(ctx, tools.ToolCall{
		ID:        "call_" + api.NewItemID(),
		Name:      flags.Arg(0),
		Arguments: *arguments,
	})
	if err != nil {
		return err
	}

	// A failed run carries its result as JSON; other tool errors are plain
	// messages.
	if !json.Valid([]byte(res.Output)) {
		if res.IsError {
			return &api.APIError{Type: api.ErrorTypeServerError, Code: "tool_error", Message: res.Output}
		}
		return writeJSON(c.stdout, map[string]string{"output": res.Output})
	}
	if _, err := fmt.Fprintln(c.stdout, res.Output); err != nil {
		return err
	}
	if res.IsError {
		return errRunFailed
	}
	return nil
}
