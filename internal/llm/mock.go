package llm

import (
	"context"
	"sync"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
)

// MockSynthesizer is a deterministic Synthesizer for tests. Responses are
// played back in order; when the script runs out the last response repeats.
type MockSynthesizer struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

// NewMockSynthesizer builds a mock that replies with the given responses in
// sequence.
func NewMockSynthesizer(responses ...string) *MockSynthesizer {
	return &MockSynthesizer{responses: responses}
}

// FailWith queues an error before the scripted responses; the nth call fails
// with the nth queued error until the queue drains.
func (m *MockSynthesizer) FailWith(errs ...error) *MockSynthesizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

func (m *MockSynthesizer) Complete(ctx context.Context, req ports.SynthesisRequest) (*ports.SynthesisResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	if len(m.responses) == 0 {
		return nil, finerrors.NewPermanentError(nil, "mock synthesizer has no scripted responses")
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return &ports.SynthesisResponse{
		Content: m.responses[idx],
		Usage:   ports.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (m *MockSynthesizer) Model() string { return "mock" }

// Calls returns how many times Complete ran.
func (m *MockSynthesizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns every prompt received, in order.
func (m *MockSynthesizer) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
