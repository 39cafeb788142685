// Package functions manages stored Python functions: named, validated
// snippets with declared pip dependencies that can be executed through the
// code interpreter by name.
//
// Persistence is delegated to a Store. Implementations live in
// pkg/storage/memory and pkg/storage/postgres.
package functions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rhuss/funcrun/pkg/storage"
)

// RuntimePython is the only supported runtime kind.
const RuntimePython = "python"

// Sentinel errors returned by the service and by Store implementations.
var (
	// ErrNotFound is returned when no function has the given name.
	ErrNotFound = storage.ErrNotFound

	// ErrConflict is returned when creating a function whose name is taken.
	ErrConflict = storage.ErrConflict

	// ErrValidation wraps every field validation failure.
	ErrValidation = errors.New("invalid function")
)

// Runtime describes how a stored function is executed.
type Runtime struct {
	Kind string `json:"kind"`
}

// Function is a stored Python function. Code must define run(); the
// function is invoked with its parameters as keyword arguments.
type Function struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Runtime      Runtime         `json:"runtime"`
	Deps         []string        `json:"deps"`
	Code         string          `json:"code,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	CreatedAt    int64           `json:"createdAt"`
	UpdatedAt    int64           `json:"updatedAt"`
}

// Update holds the fields of a partial update. Nil fields are left as
// they are.
type Update struct {
	Description  *string         `json:"description,omitempty"`
	Deps         []string        `json:"deps,omitempty"`
	Code         *string         `json:"code,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// Apply returns a copy of f with the present fields of u applied.
// UpdatedAt is left to the caller.
func (u Update) Apply(f Function) Function {
	if u.Description != nil {
		f.Description = *u.Description
	}
	if u.Deps != nil {
		f.Deps = append([]string(nil), u.Deps...)
	}
	if u.Code != nil {
		f.Code = *u.Code
	}
	if u.InputSchema != nil {
		f.InputSchema = u.InputSchema
	}
	if u.OutputSchema != nil {
		f.OutputSchema = u.OutputSchema
	}
	return f
}

// ListOptions controls pagination of Store.List. Functions are ordered by
// name; After is the name of the last function of the previous page.
type ListOptions struct {
	Limit int
	After string
}

// FunctionList is one page of functions.
type FunctionList struct {
	Data    []Function `json:"data"`
	HasMore bool       `json:"has_more"`
	// NextCursor is the After value for the next page, empty on the last page.
	NextCursor string `json:"next_cursor,omitempty"`
}

// Store persists functions keyed by name.
type Store interface {
	// Save inserts a new function, returning ErrConflict if the name exists.
	Save(ctx context.Context, fn Function) error

	// Get returns the named function or ErrNotFound.
	Get(ctx context.Context, name string) (*Function, error)

	// List returns a page of functions ordered by name.
	List(ctx context.Context, opts ListOptions) (*FunctionList, error)

	// Search returns up to limit functions whose name contains query,
	// case-insensitively, most recently updated first.
	Search(ctx context.Context, query string, limit int) ([]Function, error)

	// Update applies u to the named function and returns the result, or
	// ErrNotFound.
	Update(ctx context.Context, name string, u Update) (*Function, error)

	// Delete removes the named function, returning ErrNotFound if absent.
	Delete(ctx context.Context, name string) error

	// Exists reports whether a function with the given name is stored.
	Exists(ctx context.Context, name string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}
