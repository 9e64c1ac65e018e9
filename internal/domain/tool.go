package domain

import "encoding/json"

// FunctionDeclaration describes a callable tool. Declarations are
// caller-supplied and immutable for the duration of a tool loop.
type FunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema
}

// FunctionCall is a parsed tool invocation extracted from model text.
type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"arguments"`
}

// FunctionResponse is a tool execution result fed back to the model.
type FunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// ToolHandler executes a parsed tool call. Handler faults are converted into
// error-carrying FunctionResponses by the loop, never into engine errors.
type ToolHandler func(name string, args json.RawMessage) (FunctionResponse, error)
