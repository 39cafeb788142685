package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/tools"
)

// Prometheus metrics for native tool execution.
var (
	nativeToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_native_tool_executions_total",
			Help: "Total native tool executions",
		},
		[]string{"provider", "tool_name", "status"},
	)

	nativeToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funcrun_native_tool_duration_seconds",
			Help:    "Native tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "tool_name"},
	)
)

func init() {
	prometheus.MustRegister(
		nativeToolExecutions,
		nativeToolDuration,
	)
}

// FunctionRegistry aggregates FunctionProviders and implements tools.ToolExecutor.
// It routes tool calls to the correct provider and records metrics.
type FunctionRegistry struct {
	mu sync.RWMutex

	// providers stores registered providers in insertion order.
	providers []FunctionProvider

	// toolToProvider maps tool name to the provider that owns it.
	toolToProvider map[string]FunctionProvider
}

// Ensure FunctionRegistry implements tools.ToolExecutor at compile time.
var _ tools.ToolExecutor = (*FunctionRegistry)(nil)

// New creates an empty FunctionRegistry.
func New() *FunctionRegistry {
	return &FunctionRegistry{
		toolToProvider: make(map[string]FunctionProvider),
	}
}

// Register adds a provider to the registry. If two providers supply a tool
// with the same name, the first registered provider wins and a warning is
// logged. Provider-specific Prometheus collectors are registered too.
func (r *FunctionRegistry) Register(p FunctionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)

	for _, td := range p.Tools() {
		if existing, ok := r.toolToProvider[td.Name]; ok {
			slog.Warn("native tool name conflict, keeping first provider",
				"tool", td.Name,
				"winner", existing.Name(),
				"loser", p.Name(),
			)
			continue
		}
		r.toolToProvider[td.Name] = p
	}

	for _, c := range p.Collectors() {
		if err := prometheus.Register(c); err != nil {
			slog.Debug("collector already registered", "provider", p.Name(), "error", err)
		}
	}

	slog.Info("registered native tool provider",
		"provider", p.Name(),
		"tools", len(p.Tools()),
	)
}

// Kind returns ToolKindBuiltin.
func (r *FunctionRegistry) Kind() tools.ToolKind {
	return tools.ToolKindBuiltin
}

// CanExecute returns true if any registered provider handles the named tool.
func (r *FunctionRegistry) CanExecute(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.toolToProvider[toolName]
	return ok
}

// Execute routes the tool call to the correct provider, records metrics,
// and recovers from panics.
func (r *FunctionRegistry) Execute(ctx context.Context, call tools.ToolCall) (result *tools.ToolResult, err error) {
	r.mu.RLock()
	p, ok := r.toolToProvider[call.Name]
	r.mu.RUnlock()

	if !ok {
		return &tools.ToolResult{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no native provider handles tool %q", call.Name),
			IsError: true,
		}, nil
	}

	providerName := p.Name()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("native tool provider panicked",
				"provider", providerName,
				"tool", call.Name,
				"panic", rec,
			)
			result = &tools.ToolResult{
				CallID:  call.ID,
				Output:  fmt.Sprintf("internal error: native tool %q panicked", call.Name),
				IsError: true,
			}
			err = nil

			nativeToolExecutions.WithLabelValues(providerName, call.Name, "panic").Inc()
			nativeToolDuration.WithLabelValues(providerName, call.Name).Observe(time.Since(start).Seconds())
		}
	}()

	result, err = p.Execute(ctx, call)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	} else if result != nil && result.IsError {
		status = "tool_error"
	}

	nativeToolExecutions.WithLabelValues(providerName, call.Name, status).Inc()
	nativeToolDuration.WithLabelValues(providerName, call.Name).Observe(duration)

	return result, err
}

// Lookup returns the definition of a registered tool.
func (r *FunctionRegistry) Lookup(name string) (api.ToolDefinition, bool) {
	r.mu.RLock()
	p, ok := r.toolToProvider[name]
	r.mu.RUnlock()
	if !ok {
		return api.ToolDefinition{}, false
	}
	for _, td := range p.Tools() {
		if td.Name == name {
			return td, true
		}
	}
	return api.ToolDefinition{}, false
}

// DiscoveredTools returns the merged tool definitions from all registered
// providers, skipping names shadowed by an earlier provider.
func (r *FunctionRegistry) DiscoveredTools() []api.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allTools []api.ToolDefinition
	for _, p := range r.providers {
		for _, td := range p.Tools() {
			if r.toolToProvider[td.Name] == p {
				allTools = append(allTools, td)
			}
		}
	}
	return allTools
}

// Close closes all registered providers, returning the last error encountered.
func (r *FunctionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close native tool provider", "provider", p.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// HasProviders returns true if at least one provider is registered.
func (r *FunctionRegistry) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}
