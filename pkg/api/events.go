package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event name suffixes appended to a tool's event prefix.
const (
	// EventSuffixExecuting marks the point where assembled code is handed
	// to the remote interpreter.
	EventSuffixExecuting = "executing"
)

// DefaultEventPrefix is the prefix used for Python function tool events
// when none is configured.
const DefaultEventPrefix = "response.py_fun_tool"

// ProgressEvent is a server-sent-event shaped notification emitted while
// a tool runs. OutputIndex is serialized as a string to match the wire
// format consumed by streaming clients.
type ProgressEvent struct {
	Type        string `json:"type"`
	ItemID      string `json:"item_id"`
	OutputIndex string `json:"output_index"`
	Code        string `json:"code,omitempty"`
}

// EventName joins a prefix and a suffix with a dot. A trailing dot on the
// prefix is tolerated.
func EventName(prefix, suffix string) string {
	return strings.TrimSuffix(prefix, ".") + "." + suffix
}

// MarshalSSE formats the event as a single SSE frame:
//
//	event: {type}\n
//	data: {json}\n
//	\n
func (e ProgressEvent) MarshalSSE() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, data)), nil
}
