package ports

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ToolCall represents a request to execute a tool
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	CaseID    string         `json:"case_id,omitempty"`
}

// ToolResult is the execution result
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Content  string         `json:"content"`
	Error    error          `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Evidence []Evidence     `json:"evidence,omitempty"`
}

// MarshalJSON customizes ToolResult JSON encoding to support the error interface.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	type Alias struct {
		CallID   string         `json:"call_id"`
		Content  string         `json:"content"`
		Error    any            `json:"error,omitempty"`
		Metadata map[string]any `json:"metadata,omitempty"`
		Evidence []Evidence     `json:"evidence,omitempty"`
	}

	alias := Alias{
		CallID:   r.CallID,
		Content:  r.Content,
		Metadata: r.Metadata,
		Evidence: r.Evidence,
	}

	if r.Error != nil {
		alias.Error = r.Error.Error()
	}

	return json.Marshal(alias)
}

// UnmarshalJSON customizes ToolResult decoding to accept both string and object error representations.
func (r *ToolResult) UnmarshalJSON(data []byte) error {
	type Alias struct {
		CallID   string          `json:"call_id"`
		Content  string          `json:"content"`
		Error    json.RawMessage `json:"error"`
		Metadata map[string]any  `json:"metadata,omitempty"`
		Evidence []Evidence      `json:"evidence,omitempty"`
	}

	var aux Alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.CallID = aux.CallID
	r.Content = aux.Content
	r.Metadata = aux.Metadata
	r.Evidence = aux.Evidence
	r.Error = nil

	raw := strings.TrimSpace(string(aux.Error))
	if raw == "" || raw == "null" {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Error, &errStr); err == nil {
		if errStr != "" {
			r.Error = errors.New(errStr)
		}
		return nil
	}

	var errObj map[string]any
	if err := json.Unmarshal(aux.Error, &errObj); err == nil {
		if msg, ok := errObj["message"].(string); ok && msg != "" {
			r.Error = errors.New(msg)
			return nil
		}
		if msg, ok := errObj["error"].(string); ok && msg != "" {
			r.Error = errors.New(msg)
			return nil
		}
	}

	// Fallback: use the raw JSON string as the error message
	if raw != "" {
		r.Error = errors.New(raw)
	}

	return nil
}

// ToolDefinition describes a tool's invocation contract
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ToolMetadata contains tool information. Idempotent tools may be retried
// after an ambiguous failure; non-idempotent tools may not.
type ToolMetadata struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Idempotent bool     `json:"idempotent"`
}

// ParameterSchema defines tool parameters (JSON Schema format)
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Enum        []any     `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ToolExecutor is the capability interface every registered tool implements.
type ToolExecutor interface {
	Metadata() ToolMetadata
	Definition() ToolDefinition
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
}

// ToolRegistry provides name-based tool lookup and invocation.
type ToolRegistry interface {
	Get(name string) (ToolExecutor, error)
	List() []ToolDefinition
	Invoke(ctx context.Context, call ToolCall) (*ToolResult, error)
}
