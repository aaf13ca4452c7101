// Package toolregistry maps tool names to capability descriptors and
// validates arguments before any network call is attempted.
package toolregistry

import (
	"context"
	"fmt"
	"sync"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
)

// Registry implements ports.ToolRegistry. Built once at startup; reads after
// construction are lock-free in the common path.
type Registry struct {
	tools map[string]ports.ToolExecutor
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]ports.ToolExecutor),
	}
}

// Register adds a tool. Registration of a duplicate name is a wiring bug.
func (r *Registry) Register(tool ports.ToolExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Metadata().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already exists: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns the executor for name, or ErrToolNotFound.
func (r *Registry) Get(name string) (ports.ToolExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tool, ok := r.tools[name]; ok {
		return tool, nil
	}
	return nil, fmt.Errorf("%w: %s", finerrors.ErrToolNotFound, name)
}

// List returns definitions for every registered tool.
func (r *Registry) List() []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	return defs
}

// Invoke validates the call against the tool's schema and executes it.
// Unknown names and schema violations fail fast with no I/O attempted.
func (r *Registry) Invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	tool, err := r.Get(call.Name)
	if err != nil {
		return nil, err
	}

	if err := ValidateArguments(tool.Definition().Parameters, call.Arguments); err != nil {
		return nil, err
	}

	return tool.Execute(ctx, call)
}
