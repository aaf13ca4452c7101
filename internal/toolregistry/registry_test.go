package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
)

type stubTool struct {
	name     string
	schema   ports.ParameterSchema
	executed int
	result   *ports.ToolResult
	err      error
}

func (s *stubTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: s.name, Version: "1.0", Category: "test"}
}

func (s *stubTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{Name: s.name, Description: "stub", Parameters: s.schema}
}

func (s *stubTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	s.executed++
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &ports.ToolResult{CallID: call.ID, Content: "ok"}, nil
}

func querySchema() ports.ParameterSchema {
	return ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"query": {Type: "string", Description: "search query"},
			"top_n": {Type: "integer", Description: "result cap"},
		},
		Required: []string{"query"},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "web_search", schema: querySchema()}

	require.NoError(t, r.Register(tool))

	got, err := r.Get("web_search")
	require.NoError(t, err)
	assert.Equal(t, "web_search", got.Metadata().Name)
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "web_search", schema: querySchema()}))

	err := r.Register(&stubTool{name: "web_search", schema: querySchema()})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRegistryGetUnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("no_such_tool")
	require.Error(t, err)
	assert.ErrorIs(t, err, finerrors.ErrToolNotFound)
	assert.Equal(t, finerrors.KindToolNotFound, finerrors.KindOf(err))
}

func TestRegistryInvokeUnknownToolNoExecution(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "web_search", schema: querySchema()}
	require.NoError(t, r.Register(tool))

	_, err := r.Invoke(context.Background(), ports.ToolCall{ID: "c1", Name: "edgar_search"})
	require.Error(t, err)
	assert.ErrorIs(t, err, finerrors.ErrToolNotFound)
	assert.Zero(t, tool.executed, "no tool body should run for an unknown name")
}

func TestRegistryInvokeInvalidArgumentsNoExecution(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "web_search", schema: querySchema()}
	require.NoError(t, r.Register(tool))

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{"top_n": 5}},
		{"wrong type", map[string]any{"query": 42}},
		{"unknown argument", map[string]any{"query": "revenue", "page": 2}},
		{"fractional integer", map[string]any{"query": "revenue", "top_n": 2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(context.Background(), ports.ToolCall{ID: "c1", Name: "web_search", Arguments: tt.args})
			require.Error(t, err)
			assert.ErrorIs(t, err, finerrors.ErrInvalidArguments)
		})
	}
	assert.Zero(t, tool.executed, "validation failures must not reach the tool body")
}

func TestRegistryInvokeSuccess(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "web_search", schema: querySchema()}
	require.NoError(t, r.Register(tool))

	res, err := r.Invoke(context.Background(), ports.ToolCall{
		ID:        "c1",
		Name:      "web_search",
		Arguments: map[string]any{"query": "apple revenue 2024", "top_n": float64(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", res.CallID)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 1, tool.executed)
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "web_search", schema: querySchema()}))
	require.NoError(t, r.Register(&stubTool{name: "edgar_search", schema: querySchema()}))

	defs := r.List()
	require.Len(t, defs, 2)
	names := []string{defs[0].Name, defs[1].Name}
	assert.ElementsMatch(t, []string{"web_search", "edgar_search"}, names)
}

func TestValidateArgumentsTypes(t *testing.T) {
	schema := ports.ParameterSchema{
		Type: "object",
		Properties: map[string]ports.Property{
			"text":    {Type: "string"},
			"count":   {Type: "integer"},
			"ratio":   {Type: "number"},
			"verbose": {Type: "boolean"},
			"tags":    {Type: "array", Items: &ports.Property{Type: "string"}},
			"mode":    {Type: "string", Enum: []any{"fast", "slow"}},
		},
	}

	valid := map[string]any{
		"text":    "hello",
		"count":   float64(3),
		"ratio":   0.5,
		"verbose": true,
		"tags":    []any{"a", "b"},
		"mode":    "fast",
	}
	assert.NoError(t, ValidateArguments(schema, valid))

	assert.Error(t, ValidateArguments(schema, map[string]any{"tags": []any{"a", 1}}))
	assert.Error(t, ValidateArguments(schema, map[string]any{"mode": "medium"}))
	assert.Error(t, ValidateArguments(schema, map[string]any{"verbose": "yes"}))
}
