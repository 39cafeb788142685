// Package sandbox executes Python programs in isolated subprocesses and
// serves them as the run_code tool of an MCP code interpreter.
//
// Each run gets its own temporary working directory. Packages installed by
// the program land in a per-run target directory that is on PYTHONPATH, so
// runs never see each other's dependencies.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rhuss/funcrun/pkg/debug"
	"github.com/rhuss/funcrun/pkg/interpreter"
	"github.com/rhuss/funcrun/pkg/observability"
)

// ErrAtCapacity is returned when the maximum number of concurrent
// executions is already running.
var ErrAtCapacity = errors.New("at capacity")

// Executor runs programs.
type Executor interface {
	Execute(ctx context.Context, code string) (*interpreter.InterpreterResult, error)
}

// Config configures a PythonExecutor.
type Config struct {
	// Python is the interpreter binary. Default: "python3".
	Python string

	// Timeout bounds a single execution, including dependency installs.
	// Default: 60s.
	Timeout time.Duration

	// MaxConcurrent bounds parallel executions. Default: 4.
	MaxConcurrent int

	// PipIndex overrides the package index used by pip when set.
	PipIndex string
}

// PythonExecutor runs programs with a local Python interpreter.
type PythonExecutor struct {
	cfg         Config
	currentLoad atomic.Int32
	logger      *slog.Logger
}

var _ Executor = (*PythonExecutor)(nil)

// NewPythonExecutor creates an executor. It does not check that the
// interpreter exists; see RuntimeVersion.
func NewPythonExecutor(cfg Config, logger *slog.Logger) *PythonExecutor {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PythonExecutor{cfg: cfg, logger: logger}
}

// Capacity returns the configured concurrency limit.
func (e *PythonExecutor) Capacity() int {
	return e.cfg.MaxConcurrent
}

// CurrentLoad returns the number of running executions.
func (e *PythonExecutor) CurrentLoad() int {
	return int(e.currentLoad.Load())
}

// Execute runs code and reports what it produced. Failures of the program
// itself, including timeouts, are described in the result's Error field.
// A Go error means the program could not be started.
func (e *PythonExecutor) Execute(ctx context.Context, code string) (*interpreter.InterpreterResult, error) {
	current := e.currentLoad.Add(1)
	defer e.currentLoad.Add(-1)

	if int(current) > e.cfg.MaxConcurrent {
		observability.InterpreterExecutionsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w (%d/%d concurrent executions)", ErrAtCapacity, current, e.cfg.MaxConcurrent)
	}

	debug.Log("sandbox", "execute request", "code", debug.Truncate(code, 120))

	tmpDir, err := os.MkdirTemp("", "funcrun-exec-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pyLibs := filepath.Join(tmpDir, ".pylibs")
	if err := os.MkdirAll(pyLibs, 0o755); err != nil {
		return nil, fmt.Errorf("creating package dir: %w", err)
	}

	codePath := filepath.Join(tmpDir, "main.py")
	if err := os.WriteFile(codePath, []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("writing program: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.Python, "-u", codePath)
	cmd.Dir = tmpDir
	cmd.Env = append(os.Environ(), e.env(pyLibs)...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	execErr := cmd.Run()
	duration := time.Since(start)

	result := &interpreter.InterpreterResult{
		Stdout:  splitLines(stdoutBuf.String()),
		Stderr:  []string{},
		Results: []string{},
	}

	status := "success"
	switch {
	case execErr == nil:
		result.Stderr = splitLines(stderrBuf.String())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		status = "timeout"
		result.Error = &interpreter.InterpreterError{
			Name:      "TimeoutError",
			Value:     fmt.Sprintf("execution timed out after %s", e.cfg.Timeout),
			Traceback: stderrBuf.String(),
		}
	default:
		var exitErr *exec.ExitError
		if !errors.As(execErr, &exitErr) {
			observability.InterpreterExecutionsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("running %s: %w", e.cfg.Python, execErr)
		}
		status = "error"
		result.Error = exceptionFromStderr(stderrBuf.String(), exitErr.ExitCode())
	}

	observability.InterpreterExecutionsTotal.WithLabelValues(status).Inc()
	observability.InterpreterExecutionDuration.Observe(duration.Seconds())

	e.logger.Info("execute complete",
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"stdout_len", stdoutBuf.Len(),
		"stderr_len", stderrBuf.Len(),
	)
	debug.Trace("sandbox", "execute output", "stdout", stdoutBuf.String(), "stderr", stderrBuf.String())

	return result, nil
}

func (e *PythonExecutor) env(pyLibs string) []string {
	env := []string{
		"PYTHONPATH=" + pyLibs,
		"PIP_TARGET=" + pyLibs,
		"PIP_DISABLE_PIP_VERSION_CHECK=1",
		"PYTHONDONTWRITEBYTECODE=1",
	}
	if e.cfg.PipIndex != "" {
		env = append(env, "PIP_INDEX_URL="+e.cfg.PipIndex)
	}
	return env
}

// RuntimeVersion returns the interpreter's version line, or an error when
// the interpreter cannot be run.
func (e *PythonExecutor) RuntimeVersion(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.cfg.Python, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", e.cfg.Python, err)
	}
	version := strings.TrimSpace(string(out))
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}
	return version, nil
}

// exceptionLine matches the final "Name: value" line of a traceback.
var exceptionLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)(?::\s?(.*))?$`)

// exceptionFromStderr builds the error of a failed run from its stderr.
// The exception name and value are taken from the last line when it looks
// like a Python exception.
func exceptionFromStderr(stderr string, exitCode int) *interpreter.InterpreterError {
	ie := &interpreter.InterpreterError{
		Name:      "ProcessError",
		Value:     fmt.Sprintf("exit status %d", exitCode),
		Traceback: stderr,
	}
	lines := splitLines(stderr)
	if len(lines) == 0 {
		return ie
	}
	if m := exceptionLine.FindStringSubmatch(lines[len(lines)-1]); m != nil {
		ie.Name = m[1]
		ie.Value = m[2]
	}
	return ie
}

// splitLines returns the non-empty lines of s without line terminators.
func splitLines(s string) []string {
	lines := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
