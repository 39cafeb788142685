package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/funcrun/pkg/interpreter"
	"github.com/rhuss/funcrun/pkg/observability"
)

// RunCodeInput is the argument object of the run_code tool.
type RunCodeInput struct {
	Code string `json:"code" jsonschema:"Python program to execute"`
}

// NewMCPServer returns an MCP server exposing run_code backed by exec.
// The tool result carries the interpreter envelope as JSON text. A run
// that could not be started is reported as a tool error.
func NewMCPServer(exec Executor, version string, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	server := mcp.NewServer(
		&mcp.Implementation{Name: "funcrun-interpreter", Version: version},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        interpreter.RunCodeTool,
		Description: "Executes a Python program and returns its stdout, stderr and error",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RunCodeInput) (*mcp.CallToolResult, any, error) {
		if in.Code == "" {
			return errorResult("code is required"), nil, nil
		}

		result, err := exec.Execute(ctx, in.Code)
		if err != nil {
			if errors.Is(err, ErrAtCapacity) {
				logger.Warn("execution rejected", "error", err)
			} else {
				logger.Error("execution failed", "error", err)
			}
			return errorResult(err.Error()), nil, nil
		}

		raw, err := json.Marshal(result)
		if err != nil {
			return errorResult("encoding result: " + err.Error()), nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
		}, nil, nil
	})

	return server
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// HandlerConfig configures the HTTP routes of the interpreter server.
type HandlerConfig struct {
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string

	// Health reports runtime details on /healthz. Optional.
	Health func() HealthStatus
}

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status         string `json:"status"`
	RuntimeVersion string `json:"runtime_version,omitempty"`
	Capacity       int    `json:"capacity,omitempty"`
	CurrentLoad    int    `json:"current_load"`
	UptimeSecs     int64  `json:"uptime_seconds"`
}

// NewHandler serves server over streamable HTTP at /mcp, plus /healthz and
// the metrics endpoint. Request metrics are recorded for every route.
func NewHandler(server *mcp.Server, cfg HandlerConfig) http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{Status: "healthy"}
		if cfg.Health != nil {
			status = cfg.Health()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return observability.MetricsMiddleware(mux)
}

// HealthFunc returns a health reporter for e.
func HealthFunc(e *PythonExecutor, runtimeVersion string, started time.Time) func() HealthStatus {
	return func() HealthStatus {
		return HealthStatus{
			Status:         "healthy",
			RuntimeVersion: runtimeVersion,
			Capacity:       e.Capacity(),
			CurrentLoad:    e.CurrentLoad(),
			UptimeSecs:     int64(time.Since(started).Seconds()),
		}
	}
}
