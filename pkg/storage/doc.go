// Package storage provides what is shared across storage adapter
// implementations, currently the sentinel errors.
//
// Storage adapters (memory, postgres) implement the functions.Store
// interface defined in pkg/functions. This package contains only shared
// types, not the interface itself.
package storage
