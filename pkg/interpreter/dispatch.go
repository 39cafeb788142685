package interpreter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rhuss/funcrun/pkg/api"
)

// ToolFinder looks up a tool definition by its qualified name.
type ToolFinder interface {
	FindToolByName(name string) (api.ToolDefinition, bool)
}

// ToolExecutor invokes a remote tool and returns the raw response JSON.
// It is the only network boundary of a run.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, def api.ToolDefinition, argsJSON string) (string, error)
}

// ToolRefresher (re)registers a server and returns its current tools.
type ToolRefresher interface {
	RefreshRemoteTools(ctx context.Context, ref api.ServerRef) ([]api.ToolDefinition, error)
}

// ToolService is the combination of collaborators a Runner needs.
type ToolService interface {
	ToolFinder
	ToolExecutor
	ToolRefresher
}

// resolveTool returns the run_code definition of the server named by ref,
// refreshing the server's tools first.
func resolveTool(ctx context.Context, svc ToolService, ref api.ServerRef) (api.ToolDefinition, error) {
	ref = normalizeRef(ref)
	if ref.Label == "" {
		return api.ToolDefinition{}, ErrNoTargetServer
	}
	if _, err := svc.RefreshRemoteTools(ctx, ref); err != nil {
		return api.ToolDefinition{}, fmt.Errorf("refreshing tools of %q: %w", ref.Label, err)
	}

	name := ref.QualifiedToolName(RunCodeTool)
	def, ok := svc.FindToolByName(name)
	if !ok {
		return api.ToolDefinition{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return def, nil
}

// normalizeRef identifies a server by its URL when it has no label.
func normalizeRef(ref api.ServerRef) api.ServerRef {
	if ref.Label == "" {
		ref.Label = ref.URL
	}
	return ref
}

// dispatch performs the single run_code call carrying program.
func dispatch(ctx context.Context, exec ToolExecutor, def api.ToolDefinition, program string) (string, error) {
	args, err := json.Marshal(map[string]string{"code": program})
	if err != nil {
		return "", fmt.Errorf("encoding run_code arguments: %w", err)
	}
	raw, err := exec.ExecuteTool(ctx, def, string(args))
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", def.Name, err)
	}
	return raw, nil
}
