package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/debug"
	"github.com/rhuss/funcrun/pkg/observability"
)

// CodeRunner runs Python functions remotely.
type CodeRunner interface {
	RunCode(ctx context.Context, req CodeExecuteReq, sink EventSink) (*CodeExecResult, error)
}

// Ensure both runners implement CodeRunner at compile time.
var (
	_ CodeRunner = (*Runner)(nil)
	_ CodeRunner = NoOpRunner{}
)

// Runner assembles programs, dispatches them to a code interpreter MCP
// server and extracts the results. All fields are read-only after New, so
// a Runner is safe for concurrent use.
type Runner struct {
	svc         ToolService
	defaultRef  api.ServerRef
	defaultTool *api.ToolDefinition
	eventPrefix string
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*runnerOptions)

type runnerOptions struct {
	defaultServer *api.ServerRef
	eventPrefix   string
	logger        *slog.Logger
}

// WithDefaultServer sets the interpreter used by runs that carry no server
// override. Its run_code tool is resolved once, in New.
func WithDefaultServer(ref api.ServerRef) Option {
	return func(o *runnerOptions) {
		o.defaultServer = &ref
	}
}

// WithEventPrefix sets the prefix of progress event types.
func WithEventPrefix(prefix string) Option {
	return func(o *runnerOptions) {
		if prefix != "" {
			o.eventPrefix = prefix
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *runnerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a Runner backed by svc. With a default server configured,
// New registers it and fails if it does not expose run_code. Without one,
// every run must name its own server.
func New(ctx context.Context, svc ToolService, opts ...Option) (*Runner, error) {
	o := runnerOptions{
		eventPrefix: api.DefaultEventPrefix,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runner{
		svc:         svc,
		eventPrefix: o.eventPrefix,
		logger:      o.logger,
	}

	if o.defaultServer != nil {
		def, err := resolveTool(ctx, svc, *o.defaultServer)
		if err != nil {
			return nil, fmt.Errorf("resolving default code interpreter: %w", err)
		}
		r.defaultRef = normalizeRef(*o.defaultServer)
		r.defaultTool = &def
		r.logger.Info("code interpreter resolved", "tool", def.Name, "mode", "deployment")
	} else {
		r.logger.Info("no default code interpreter, runs must name a server", "mode", "runtime")
	}
	return r, nil
}

// RunCode executes req on the remote interpreter. Local precondition
// failures are returned as errors before any remote call. Failures
// reported by the interpreter are returned in the result's Error field.
// Exactly one progress event is sent to sink, right before dispatch.
func (r *Runner) RunCode(ctx context.Context, req CodeExecuteReq, sink EventSink) (*CodeExecResult, error) {
	attrs, hasParams, err := NewAssembleAttributes(req)
	if err != nil {
		observability.CodeRunFailuresTotal.WithLabelValues(stagePrecondition).Inc()
		return nil, err
	}
	program := Assemble(attrs, hasParams)

	def, err := r.target(ctx, req.Server)
	if err != nil {
		observability.CodeRunFailuresTotal.WithLabelValues(stageResolve).Inc()
		return nil, err
	}

	r.logger.Debug("dispatching code",
		"tool", def.Name,
		"function", req.FunName,
		"deps", len(req.Deps),
		"params", hasParams,
		"program_bytes", len(program),
		"program_preview", debug.Truncate(program, 200),
	)
	debug.Trace("interpreter", "assembled program", "tool", def.Name, "program", program)
	emitExecuting(sink, r.eventPrefix, program)

	start := time.Now()
	raw, err := dispatch(ctx, r.svc, def, program)
	if err != nil {
		observability.CodeRunFailuresTotal.WithLabelValues(stageExecute).Inc()
		return nil, err
	}

	debug.Trace("interpreter", "interpreter response", "tool", def.Name, "raw", raw)

	result, err := Extract(raw)
	if err != nil {
		observability.CodeRunFailuresTotal.WithLabelValues(stageExtract).Inc()
		return nil, err
	}

	outcome := result.Outcome()
	observability.CodeRunsTotal.WithLabelValues(outcome).Inc()
	observability.CodeRunDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	r.logger.Info("code run finished",
		"tool", def.Name,
		"function", req.FunName,
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Failure stages reported to observability.CodeRunFailuresTotal.
const (
	stagePrecondition = "precondition"
	stageResolve      = "resolve"
	stageExecute      = "execute"
	stageExtract      = "extract"
)

// target picks the tool for a run: the request's own server, else the
// default resolved in New. An override naming the default's label never
// re-registers it; it either matches the default or is rejected.
func (r *Runner) target(ctx context.Context, override *api.ServerRef) (api.ToolDefinition, error) {
	if override != nil {
		ref := normalizeRef(*override)
		if r.defaultTool != nil && ref.Label == r.defaultRef.Label {
			if ref.URL != "" && ref.URL != r.defaultRef.URL {
				return api.ToolDefinition{}, fmt.Errorf("%w: %q", ErrServerConflict, ref.Label)
			}
			return *r.defaultTool, nil
		}
		return resolveTool(ctx, r.svc, ref)
	}
	if r.defaultTool == nil {
		return api.ToolDefinition{}, ErrNoTargetServer
	}
	return *r.defaultTool, nil
}

// NoOpRunner is used when the code interpreter is disabled.
type NoOpRunner struct{}

// RunCode always fails with ErrServiceUnavailable.
func (NoOpRunner) RunCode(context.Context, CodeExecuteReq, EventSink) (*CodeExecResult, error) {
	return nil, ErrServiceUnavailable
}

// IsPrecondition reports whether err is a local precondition failure, as
// opposed to a transport or protocol error.
func IsPrecondition(err error) bool {
	for _, target := range []error{
		ErrMissingFunctionName, ErrMissingCode, ErrInvalidCode, ErrInvalidParams,
		ErrNoTargetServer, ErrToolNotFound, ErrServerConflict, ErrServiceUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
