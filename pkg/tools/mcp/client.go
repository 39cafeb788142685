package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/debug"
)

// MCPClient wraps an MCP SDK Client and ClientSession for a single
// MCP server connection. It handles connection lifecycle, tool discovery,
// and tool execution.
type MCPClient struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu          sync.Mutex
	cachedTools []api.ToolDefinition
}

// CallResult is the text outcome of a tool call.
type CallResult struct {
	IsError bool   `json:"isError"`
	Content string `json:"content"`
}

// NewMCPClient creates a new MCPClient for the given server configuration.
// Call Connect to establish the connection.
func NewMCPClient(cfg ServerConfig) *MCPClient {
	return &MCPClient{cfg: cfg}
}

// Config returns the server configuration the client was created with.
func (c *MCPClient) Config() ServerConfig {
	return c.cfg
}

// Connect establishes the MCP connection to the server, performing the
// protocol handshake.
func (c *MCPClient) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport establishes the MCP connection using the given
// transport. If transport is nil, a transport is created from the
// server configuration.
func (c *MCPClient) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "funcrun",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

// createTransport creates an MCP transport based on the server configuration.
func (c *MCPClient) createTransport() (mcp.Transport, error) {
	if c.cfg.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	httpClient, err := c.buildHTTPClient()
	if err != nil {
		return nil, err
	}

	switch c.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client with the appropriate transport
// for authentication. Returns nil if no auth or custom headers are configured.
func (c *MCPClient) buildHTTPClient() (*http.Client, error) {
	authProvider, err := NewAuthProvider(c.cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("configuring auth: %w", err)
	}

	// Build transport chain: static headers + auth provider.
	hasStaticHeaders := len(c.cfg.Headers) > 0
	if !hasStaticHeaders && authProvider == nil {
		return nil, nil
	}

	return &http.Client{
		Transport: &authAwareTransport{
			base:         http.DefaultTransport,
			headers:      c.cfg.Headers,
			authProvider: authProvider,
		},
	}, nil
}

// authAwareTransport is an http.RoundTripper that adds static headers and
// dynamically obtained auth headers to every request.
type authAwareTransport struct {
	base         http.RoundTripper
	headers      map[string]string
	authProvider AuthProvider
}

func (t *authAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	// Auth provider headers may override static headers, e.g. Authorization.
	if t.authProvider != nil {
		authHeaders, err := t.authProvider.GetHeaders(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}

	return t.base.RoundTrip(req)
}

// DiscoverTools queries the MCP server for its current tools and converts
// them to api.ToolDefinition format. Names are the server's own,
// unqualified tool names.
func (c *MCPClient) DiscoverTools(ctx context.Context) ([]api.ToolDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var toolDefs []api.ToolDefinition
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		td, convErr := convertTool(tool)
		if convErr != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, convErr)
		}
		toolDefs = append(toolDefs, td)
	}

	debug.Log("mcp", "discovered tools", "server", c.cfg.Name, "count", len(toolDefs))
	c.cachedTools = toolDefs
	return toolDefs, nil
}

// CachedTools returns the tools found by the last DiscoverTools call.
func (c *MCPClient) CachedTools() []api.ToolDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedTools
}

// CallTool executes a tool call on the MCP server. Errors reported by the
// tool come back as a CallResult with IsError set; protocol and transport
// failures are returned as errors.
func (c *MCPClient) CallTool(ctx context.Context, name, argsJSON string) (*CallResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	// Parse the arguments from JSON string to a generic map.
	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("invalid arguments JSON for %q: %w", name, err)
		}
	}

	debug.Log("mcp", "calling tool", "server", c.cfg.Name, "tool", name, "args_bytes", len(argsJSON))

	params := &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	}

	result, err := c.session.CallTool(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %q: %w", name, c.cfg.Name, err)
	}

	return convertResult(result), nil
}

// Close closes the MCP session.
func (c *MCPClient) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// convertTool converts an MCP Tool to an api.ToolDefinition.
func convertTool(t *mcp.Tool) (api.ToolDefinition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.ToolDefinition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}

	return api.ToolDefinition{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
		Strict:      false,
	}, nil
}

// convertResult joins the text parts of an MCP CallToolResult.
func convertResult(result *mcp.CallToolResult) *CallResult {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}

	return &CallResult{
		IsError: result.IsError,
		Content: strings.Join(parts, "\n"),
	}
}
