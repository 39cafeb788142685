// Package registry provides a pluggable framework for native tools that
// funcrun executes in-process. A FunctionProvider encapsulates a set of
// tools together with optional Prometheus collectors for custom metrics.
//
// The FunctionRegistry aggregates providers and implements
// tools.ToolExecutor, routing each call to the provider owning the tool.
package registry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/tools"
)

// FunctionProvider is a pluggable native tool provider.
type FunctionProvider interface {
	// Name returns a unique identifier for this provider (e.g., "py_fun_tool").
	Name() string

	// Tools returns the tool definitions this provider contributes.
	Tools() []api.ToolDefinition

	// CanExecute reports whether this provider handles the named tool.
	CanExecute(name string) bool

	// Execute runs a tool call and returns the result.
	Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error)

	// Collectors returns Prometheus collectors for provider-specific metrics.
	Collectors() []prometheus.Collector

	// Close releases any resources held by the provider.
	Close() error
}
