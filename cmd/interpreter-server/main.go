// Command interpreter-server runs an MCP code interpreter that executes
// Python programs in subprocesses.
//
// The run_code tool is served over streamable HTTP at /mcp. /healthz and
// the metrics endpoint skip authentication.
//
// Configuration comes from the config file (see pkg/config) and FUNCRUN_*
// environment variables. Flags:
//
//	--config  path to the YAML config file
//	--port    listen port, overrides server.port
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rhuss/funcrun/pkg/auth"
	"github.com/rhuss/funcrun/pkg/auth/apikey"
	"github.com/rhuss/funcrun/pkg/auth/jwt"
	"github.com/rhuss/funcrun/pkg/auth/noop"
	"github.com/rhuss/funcrun/pkg/config"
	"github.com/rhuss/funcrun/pkg/debug"
	"github.com/rhuss/funcrun/pkg/sandbox"
	transporthttp "github.com/rhuss/funcrun/pkg/transport/http"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("interpreter server failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("interpreter-server", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file")
	port := flags.Int("port", 0, "listen port (overrides server.port)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger := debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor := sandbox.NewPythonExecutor(sandbox.Config{
		Python:        cfg.Server.Python,
		Timeout:       cfg.Server.ExecTimeout,
		MaxConcurrent: cfg.Server.MaxConcurrent,
		PipIndex:      cfg.Server.PipIndex,
	}, logger)

	runtimeVersion, err := executor.RuntimeVersion(ctx)
	if err != nil {
		return fmt.Errorf("checking python runtime: %w", err)
	}

	chain, limiter, err := buildAuth(cfg.Server.Auth)
	if err != nil {
		return err
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	handler := sandbox.NewHandler(sandbox.NewMCPServer(executor, version, logger), sandbox.HandlerConfig{
		MetricsPath: metricsPath,
		Health:      sandbox.HealthFunc(executor, runtimeVersion, time.Now()),
	})

	bypass := append([]string{}, auth.DefaultBypassEndpoints...)
	if metricsPath != "" {
		bypass = append(bypass, metricsPath)
	}

	srv := transporthttp.NewServer(handler,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMiddleware(auth.Middleware(chain, limiter, bypass)),
		transporthttp.WithLogger(logger),
	)

	logger.Info("interpreter server configured",
		"port", cfg.Server.Port,
		"runtime", runtimeVersion,
		"max_concurrent", cfg.Server.MaxConcurrent,
		"exec_timeout", cfg.Server.ExecTimeout,
		"auth", cfg.Server.Auth.Type,
	)
	return srv.Run(ctx)
}

// buildAuth assembles the authenticator chain and rate limiter for cfg.
// With type "jwt", configured API keys are consulted before the token is
// verified as a JWT.
func buildAuth(cfg config.AuthConfig) (*auth.AuthChain, auth.RateLimiter, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Type {
	case "none", "":
		chain.Authenticators = []auth.Authenticator{noop.Authenticator{}}
	case "apikey":
		chain.Authenticators = []auth.Authenticator{apikey.New(apiKeys(cfg.APIKeys))}
	case "jwt":
		if len(cfg.APIKeys) > 0 {
			chain.Authenticators = append(chain.Authenticators, apikey.New(apiKeys(cfg.APIKeys)))
		}
		verifier, err := jwt.New(jwt.Config{
			Secret:      cfg.JWT.Secret,
			JWKSURL:     cfg.JWT.JWKSURL,
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("configuring jwt auth: %w", err)
		}
		chain.Authenticators = append(chain.Authenticators, verifier)
	default:
		return nil, nil, fmt.Errorf("unsupported auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.RequestsPerMinute > 0 || len(cfg.RateLimit.PerSubject) > 0 {
		limiter = auth.NewInProcessLimiter(cfg.RateLimit.PerSubject, cfg.RateLimit.RequestsPerMinute)
	}
	return chain, limiter, nil
}

func apiKeys(cfgKeys []config.APIKeyConfig) []apikey.Key {
	keys := make([]apikey.Key, 0, len(cfgKeys))
	for _, k := range cfgKeys {
		keys = append(keys, apikey.Key{Key: k.Key, Subject: k.Subject, Scopes: k.Scopes})
	}
	return keys
}
