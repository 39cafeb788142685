package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/rhuss/funcrun/pkg/api"
	"github.com/rhuss/funcrun/pkg/observability"
)

// ErrUnknownTool is returned by ExecuteTool for names that no registered
// server provides.
var ErrUnknownTool = errors.New("unknown MCP tool")

// QualifiedToolName returns the registry name of a server's tool.
func QualifiedToolName(server, tool string) string {
	return api.ServerRef{Label: server}.QualifiedToolName(tool)
}

// ToolService keeps one connection per MCP server and a registry of their
// tools keyed by qualified name. It is safe for concurrent use.
type ToolService struct {
	transport string
	logger    *slog.Logger

	mu      sync.RWMutex
	clients map[string]*MCPClient     // by server label
	tools   map[string]registeredTool // by qualified name
}

type registeredTool struct {
	def    api.ToolDefinition
	server string
	name   string
}

// ServiceOption configures a ToolService.
type ServiceOption func(*ToolService)

// WithDefaultTransport sets the transport used for servers registered
// through RefreshRemoteTools.
func WithDefaultTransport(transport string) ServiceOption {
	return func(s *ToolService) {
		s.transport = transport
	}
}

// WithServiceLogger sets the logger. The default is slog.Default().
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *ToolService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewToolService creates an empty ToolService.
func NewToolService(opts ...ServiceOption) *ToolService {
	s := &ToolService{
		logger:  slog.Default(),
		clients: make(map[string]*MCPClient),
		tools:   make(map[string]registeredTool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterServer connects to the server described by cfg and registers its
// tools, replacing any earlier registration under the same name.
func (s *ToolService) RegisterServer(ctx context.Context, cfg ServerConfig) ([]api.ToolDefinition, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	client := NewMCPClient(cfg)
	if err := client.Connect(ctx); err != nil {
		observability.ToolRefreshesTotal.WithLabelValues(cfg.Name, "error").Inc()
		return nil, err
	}
	return s.RegisterClient(ctx, client)
}

// RegisterClient registers the tools of an already connected client.
func (s *ToolService) RegisterClient(ctx context.Context, client *MCPClient) ([]api.ToolDefinition, error) {
	label := client.Config().Name

	discovered, err := client.DiscoverTools(ctx)
	if err != nil {
		observability.ToolRefreshesTotal.WithLabelValues(label, "error").Inc()
		return nil, err
	}

	s.mu.Lock()
	previous := s.clients[label]
	s.clients[label] = client
	defs := s.replaceToolsLocked(label, discovered)
	s.mu.Unlock()

	if previous != nil && previous != client {
		if err := previous.Close(); err != nil {
			s.logger.Warn("failed to close replaced MCP client", "server", label, "error", err)
		}
	}

	observability.ToolRefreshesTotal.WithLabelValues(label, "ok").Inc()
	s.logger.Info("registered MCP tools", "server", label, "count", len(defs))
	return defs, nil
}

// RefreshRemoteTools makes sure the server named by ref is connected and
// re-lists its tools. An existing connection is reused when its URL and
// credentials match ref; otherwise the server is reconnected.
func (s *ToolService) RefreshRemoteTools(ctx context.Context, ref api.ServerRef) ([]api.ToolDefinition, error) {
	cfg := ServerConfigFromRef(ref, s.transport)
	if cfg.Name == "" {
		return nil, fmt.Errorf("server label or URL is required")
	}

	s.mu.RLock()
	existing := s.clients[cfg.Name]
	s.mu.RUnlock()

	if existing != nil && reusable(existing.Config(), cfg) {
		return s.RegisterClient(ctx, existing)
	}
	return s.RegisterServer(ctx, cfg)
}

// reusable reports whether a connection made with have can serve want.
// An empty URL in want means "whatever is registered under this name".
func reusable(have, want ServerConfig) bool {
	if want.URL == "" {
		return true
	}
	return have.URL == want.URL && reflect.DeepEqual(have.Auth, want.Auth)
}

// replaceToolsLocked swaps the registry entries of server for discovered
// and returns the qualified definitions. Callers must hold s.mu.
func (s *ToolService) replaceToolsLocked(server string, discovered []api.ToolDefinition) []api.ToolDefinition {
	for name, rt := range s.tools {
		if rt.server == server {
			delete(s.tools, name)
		}
	}

	defs := make([]api.ToolDefinition, 0, len(discovered))
	for _, td := range discovered {
		qualified := td
		qualified.Name = QualifiedToolName(server, td.Name)

		if existing, ok := s.tools[qualified.Name]; ok {
			s.logger.Warn("qualified MCP tool name conflict, keeping first server",
				"tool", qualified.Name,
				"winner", existing.server,
				"loser", server,
			)
			continue
		}
		s.tools[qualified.Name] = registeredTool{def: qualified, server: server, name: td.Name}
		defs = append(defs, qualified)
	}
	return defs
}

// FindToolByName returns the definition registered under a qualified name.
func (s *ToolService) FindToolByName(name string) (api.ToolDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.tools[name]
	return rt.def, ok
}

// ExecuteTool calls the tool named by def.Name and returns the raw
// {"isError": bool, "content": string} envelope as JSON. Transport
// failures are returned as errors.
func (s *ToolService) ExecuteTool(ctx context.Context, def api.ToolDefinition, argsJSON string) (string, error) {
	s.mu.RLock()
	rt, ok := s.tools[def.Name]
	var client *MCPClient
	if ok {
		client = s.clients[rt.server]
	}
	s.mu.RUnlock()

	if !ok || client == nil {
		observability.ToolExecutionsTotal.WithLabelValues(def.Name, "unknown").Inc()
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, def.Name)
	}

	result, err := client.CallTool(ctx, rt.name, argsJSON)
	if err != nil {
		observability.ToolExecutionsTotal.WithLabelValues(def.Name, "error").Inc()
		s.logger.Warn("MCP tool call failed", "tool", def.Name, "server", rt.server, "error", err)
		return "", err
	}

	status := "ok"
	if result.IsError {
		status = "tool_error"
	}
	observability.ToolExecutionsTotal.WithLabelValues(def.Name, status).Inc()

	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding tool response: %w", err)
	}
	return string(raw), nil
}

// Tools returns all registered definitions sorted by qualified name.
func (s *ToolService) Tools() []api.ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs := make([]api.ToolDefinition, 0, len(s.tools))
	for _, rt := range s.tools {
		defs = append(defs, rt.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Close closes all MCP client connections, returning the last error
// encountered.
func (s *ToolService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for name, client := range s.clients {
		if err := client.Close(); err != nil {
			s.logger.Warn("failed to close MCP client", "server", name, "error", err)
			lastErr = err
		}
	}
	s.clients = make(map[string]*MCPClient)
	s.tools = make(map[string]registeredTool)
	return lastErr
}
