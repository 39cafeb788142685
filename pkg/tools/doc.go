// Package tools defines the tool executor interface and the call/result
// types shared by funcrun's native tools. A ToolExecutor receives a
// model-style tool call (name plus JSON arguments) and returns text output.
//
// This package has no dependencies outside the standard library.
package tools
