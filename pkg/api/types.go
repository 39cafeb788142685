package api

import "encoding/json"

// ToolDefinition describes a tool that can be invoked by name.
// Parameters holds the JSON Schema of the tool's arguments.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict"`
}

// ServerRef identifies a remote MCP server. Label is the server identity
// used to qualify its tool names.
type ServerRef struct {
	Label  string `json:"serverLabel"`
	URL    string `json:"serverUrl"`
	APIKey string `json:"apiKey,omitempty"`
}

// QualifiedToolName returns the registry name of one of the server's tools.
func (s ServerRef) QualifiedToolName(tool string) string {
	return s.Label + "_" + tool
}
