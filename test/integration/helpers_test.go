// Package integration provides integration tests for the funcrun code
// interpreter pipeline.
//
// Tests run against a real interpreter HTTP server with API key
// authentication, started in-process using net/http/httptest. Python runs
// are answered by a scripted executor, so the suite needs no interpreter
// installed.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/auth"
	"github.com/rhuss/funcrun/pkg/auth/apikey"
	"github.com/rhuss/funcrun/pkg/interpreter"
	"github.com/rhuss/funcrun/pkg/sandbox"
	toolsmcp "github.com/rhuss/funcrun/pkg/tools/mcp"
	transporthttp "github.com/rhuss/funcrun/pkg/transport/http"
)

const (
	testAPIKey    = "integration-key"
	limitedAPIKey = "limited-key"
	serverLabel   = "sandbox"
)

// testEnv holds the shared server for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the interpreter server and its executor.
type TestEnvironment struct {
	InterpreterServer *httptest.Server
	Executor          *scriptedExecutor
}

// TestMain starts the interpreter server before running tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

// setupTestEnvironment wires the interpreter server the way the
// interpreter-server command does.
func setupTestEnvironment() *TestEnvironment {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor := &scriptedExecutor{}

	handler := sandbox.NewHandler(sandbox.NewMCPServer(executor, "integration", logger), sandbox.HandlerConfig{
		MetricsPath: "/metrics",
	})

	chain := &auth.AuthChain{
		Authenticators: []auth.Authenticator{apikey.New([]apikey.Key{
			{Key: testAPIKey, Subject: "funcrun"},
			{Key: limitedAPIKey, Subject: "limited"},
		})},
		DefaultDecision: auth.No,
	}
	limiter := auth.NewInProcessLimiter(map[string]int{"limited": 1}, 0)

	srv := transporthttp.NewServer(handler,
		transporthttp.WithMiddleware(auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints)),
		transporthttp.WithLogger(logger),
	)

	return &TestEnvironment{
		InterpreterServer: httptest.NewServer(srv.Handler()),
		Executor:          executor,
	}
}

// Teardown stops the server.
func (env *TestEnvironment) Teardown() {
	if env.InterpreterServer != nil {
		env.InterpreterServer.Close()
	}
}

// BaseURL returns the interpreter server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.InterpreterServer.URL
}

// MCPURL returns the streamable HTTP endpoint.
func (env *TestEnvironment) MCPURL() string {
	return env.InterpreterServer.URL + "/mcp"
}

// ServerRef returns a reference to the test interpreter authenticated
// with key.
func (env *TestEnvironment) ServerRef(key string) api.ServerRef {
	return api.ServerRef{Label: serverLabel, URL: env.MCPURL(), APIKey: key}
}

// --- Runner helpers ---

// newRunner returns a runner whose default interpreter is the test server.
func newRunner(t *testing.T) *interpreter.Runner {
	t.Helper()
	svc := toolsmcp.NewToolService(toolsmcp.WithServiceLogger(quietLogger()))
	t.Cleanup(func() { _ = svc.Close() })

	runner, err := interpreter.New(t.Context(), svc,
		interpreter.WithDefaultServer(testEnv.ServerRef(testAPIKey)),
		interpreter.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("creating runner: %v", err)
	}
	return runner
}

// newRuntimeRunner returns a runner without a default interpreter.
func newRuntimeRunner(t *testing.T) *interpreter.Runner {
	t.Helper()
	svc := toolsmcp.NewToolService(toolsmcp.WithServiceLogger(quietLogger()))
	t.Cleanup(func() { _ = svc.Close() })

	runner, err := interpreter.New(t.Context(), svc, interpreter.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("creating runner: %v", err)
	}
	return runner
}

// eventRecorder collects progress events.
type eventRecorder struct {
	mu     sync.Mutex
	events []api.ProgressEvent
}

func (r *eventRecorder) sink(ev api.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []api.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.ProgressEvent(nil), r.events...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- HTTP helpers ---

// getURL sends a GET request and returns the response.
func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

// postMCP sends a JSON-RPC request to the MCP endpoint with an optional
// bearer token.
func postMCP(t *testing.T, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, testEnv.MCPURL(), strings.NewReader(body))
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", testEnv.MCPURL(), err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// decodeJSON reads the response body and decodes it into the target.
func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// --- Scripted executor ---

// scriptedExecutor answers run_code by trigger words in the program:
// "explode" raises, "grumble" writes only to stderr, "plot" returns a
// rich result and anything else prints {"function_output": "ok"}.
type scriptedExecutor struct {
	mu       sync.Mutex
	programs []string
}

func (e *scriptedExecutor) Execute(_ context.Context, code string) (*interpreter.InterpreterResult, error) {
	e.mu.Lock()
	e.programs = append(e.programs, code)
	e.mu.Unlock()

	res := &interpreter.InterpreterResult{Stdout: []string{}, Stderr: []string{}, Results: []string{}}
	switch {
	case strings.Contains(code, "explode"):
		res.Stderr = []string{"Traceback (most recent call last):", "ValueError: boom"}
		res.Error = &interpreter.InterpreterError{
			Name:      "ValueError",
			Value:     "boom",
			Traceback: "Traceback (most recent call last):\nValueError: boom",
		}
	case strings.Contains(code, "grumble"):
		res.Stderr = []string{"warning: grumbling"}
	case strings.Contains(code, "plot"):
		res.Results = []string{"<Figure size 640x480>"}
	default:
		res.Stdout = []string{`{"function_output": "ok", "user_stdout": null}`}
	}
	return res, nil
}

// last returns the most recently executed program.
func (e *scriptedExecutor) last() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.programs) == 0 {
		return ""
	}
	return e.programs[len(e.programs)-1]
}

// fixedExecutor prints the same stdout line for every program.
type fixedExecutor string

func (e fixedExecutor) Execute(context.Context, string) (*interpreter.InterpreterResult, error) {
	return &interpreter.InterpreterResult{Stdout: []string{string(e)}, Stderr: []string{}, Results: []string{}}, nil
}
