// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring funcrun.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RunBuckets defines histogram buckets suited for remote code runs,
// ranging from 100ms to 5m. Dependency installs dominate the upper end.
var RunBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and path.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "path"},
	)

	// RequestDuration records HTTP request duration in seconds by method and path.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funcrun_request_duration_seconds",
			Help:    "Request duration",
			Buckets: RunBuckets,
		},
		[]string{"method", "path"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "funcrun_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// CodeRunsTotal counts completed runs by outcome (SUCCESS or a result
	// error code).
	CodeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_code_runs_total",
			Help: "Code runs",
		},
		[]string{"outcome"},
	)

	// CodeRunDuration records the duration of the remote run_code call.
	CodeRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "funcrun_code_run_duration_seconds",
			Help:    "Code run duration",
			Buckets: RunBuckets,
		},
		[]string{"outcome"},
	)

	// CodeRunFailuresTotal counts runs that failed before producing a
	// result, by the stage that failed.
	CodeRunFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_code_run_failures_total",
			Help: "Code runs without a result",
		},
		[]string{"stage"},
	)

	// ToolExecutionsTotal counts remote MCP tool calls by name and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"tool_name", "status"},
	)

	// ToolRefreshesTotal counts tool list refreshes by server and outcome.
	ToolRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_tool_refreshes_total",
			Help: "Remote tool refreshes",
		},
		[]string{"server", "status"},
	)

	// AuthRejectedTotal counts requests rejected by the auth middleware,
	// by reason.
	AuthRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_auth_rejected_total",
			Help: "Requests rejected by authentication or rate limiting",
		},
		[]string{"reason"},
	)

	// InterpreterExecutionsTotal counts programs executed by the
	// interpreter server by outcome.
	InterpreterExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funcrun_interpreter_executions_total",
			Help: "Interpreter executions",
		},
		[]string{"status"},
	)

	// InterpreterExecutionDuration records program execution time in the
	// interpreter server.
	InterpreterExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "funcrun_interpreter_execution_duration_seconds",
			Help:    "Interpreter execution duration",
			Buckets: RunBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		CodeRunsTotal,
		CodeRunDuration,
		CodeRunFailuresTotal,
		ToolExecutionsTotal,
		ToolRefreshesTotal,
		AuthRejectedTotal,
		InterpreterExecutionsTotal,
		InterpreterExecutionDuration,
	)
}
