package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/config"
	"github.com/rhuss/funcrun/pkg/debug"
	"github.com/rhuss/funcrun/pkg/functions"
	"github.com/rhuss/funcrun/pkg/interpreter"
	"github.com/rhuss/funcrun/pkg/storage/memory"
	"github.com/rhuss/funcrun/pkg/storage/postgres"
	"github.com/rhuss/funcrun/pkg/tools/builtins/pyrunner"
	toolsmcp "github.com/rhuss/funcrun/pkg/tools/mcp"
	"github.com/rhuss/funcrun/pkg/tools/registry"
)

// cli holds the process streams. tools and store, when set, are used
// instead of the ones built from the configuration and are not closed.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	tools *toolsmcp.ToolService
	store functions.Store
}

// app is the set of components one command runs against.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tools     *toolsmcp.ToolService
	runner    interpreter.CodeRunner
	store     functions.Store
	functions *functions.Service
	registry  *registry.FunctionRegistry

	closers []func() error
}

// setup loads the configuration and builds the components. The code
// interpreter is connected only when withRunner is set; otherwise runs
// fail with interpreter.ErrServiceUnavailable.
func (c *cli) setup(ctx context.Context, configPath string, withRunner bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, api.NewInvalidRequestError("config", err.Error())
	}
	logger := debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	a := &app{cfg: cfg, logger: logger, tools: c.tools, store: c.store}

	if a.tools == nil {
		a.tools = toolsmcp.NewToolService(
			toolsmcp.WithDefaultTransport(cfg.CodeInterpreter.Transport),
			toolsmcp.WithServiceLogger(logger),
		)
		a.closers = append(a.closers, a.tools.Close)
	}

	a.runner = interpreter.NoOpRunner{}
	if withRunner {
		if a.runner, err = newRunner(ctx, cfg, a.tools, logger); err != nil {
			_ = a.close()
			return nil, err
		}
	}

	if a.store == nil {
		if a.store, err = newStore(ctx, cfg.Storage, logger); err != nil {
			_ = a.close()
			return nil, err
		}
		a.closers = append(a.closers, a.store.Close)
	}

	a.functions = functions.NewService(a.store, a.runner, functions.WithLogger(logger))

	a.registry = registry.New()
	a.registry.Register(pyrunner.New(a.runner,
		pyrunner.WithFunctions(a.functions),
		pyrunner.WithEventSink(c.eventSink()),
		pyrunner.WithLogger(logger),
	))
	a.closers = append(a.closers, a.registry.Close)

	return a, nil
}

// close releases the components the app owns, in reverse order.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newRunner builds the code runner for the configured interpreter. In
// deployment mode the interpreter is registered with its full connection
// settings and becomes the default server of every run.
func newRunner(ctx context.Context, cfg *config.Config, svc *toolsmcp.ToolService, logger *slog.Logger) (interpreter.CodeRunner, error) {
	ci := cfg.CodeInterpreter
	if !ci.Enabled {
		logger.Info("code interpreter disabled")
		return interpreter.NoOpRunner{}, nil
	}

	opts := []interpreter.Option{
		interpreter.WithEventPrefix(cfg.Events.Prefix),
		interpreter.WithLogger(logger),
	}
	if ci.Mode() == config.ModeDeployment {
		if _, err := svc.RegisterServer(ctx, serverConfig(ci)); err != nil {
			return nil, fmt.Errorf("connecting to code interpreter %q: %w", ci.Name, err)
		}
		// An empty URL makes the runner reuse the connection registered above.
		opts = append(opts, interpreter.WithDefaultServer(api.ServerRef{Label: ci.Name}))
	}

	runner, err := interpreter.New(ctx, svc, opts...)
	if err != nil {
		return nil, err
	}
	return runner, nil
}

// serverConfig maps the interpreter settings onto an MCP connection. A
// missing auth type sends the API key as a bearer token.
func serverConfig(ci config.CodeInterpreterConfig) toolsmcp.ServerConfig {
	auth := toolsmcp.AuthConfig{
		Type:         ci.Auth.Type,
		TokenURL:     ci.Auth.TokenURL,
		ClientID:     ci.Auth.ClientID,
		ClientSecret: ci.Auth.ClientSecret,
		Scopes:       ci.Auth.Scopes,
		Secret:       ci.Auth.Secret,
		Issuer:       ci.Auth.Issuer,
		Audience:     ci.Auth.Audience,
		Subject:      ci.Auth.Subject,
		TTL:          ci.Auth.TTL,
	}
	if auth.Type == "" {
		auth.Type = toolsmcp.AuthNone
		if ci.APIKey != "" {
			auth.Type = toolsmcp.AuthBearer
		}
	}
	if auth.Type == toolsmcp.AuthBearer {
		auth.Token = ci.APIKey
	}

	return toolsmcp.ServerConfig{
		Name:      ci.Name,
		Transport: ci.Transport,
		URL:       ci.URL,
		Auth:      auth,
	}
}

func newStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (functions.Store, error) {
	switch cfg.Type {
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, api.NewUnavailableError(fmt.Sprintf("opening function store: %v", err))
		}
		return store, nil
	default:
		logger.Debug("using in-memory function store, functions do not outlive the process",
			"max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	}
}

// eventSink writes progress events to stderr as SSE frames.
func (c *cli) eventSink() interpreter.EventSink {
	return func(ev api.ProgressEvent) {
		frame, err := ev.MarshalSSE()
		if err != nil {
			slog.Warn("dropping progress event", "type", ev.Type, "error", err)
			return
		}
		_, _ = c.stderr.Write(frame)
	}
}
