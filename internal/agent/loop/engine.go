package loop

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
	"finbench/internal/logging"
)

// Engine runs one question through the tool-orchestration loop. Engines are
// cheap; build one per question and discard it.
type Engine struct {
	registry     ports.ToolRegistry
	synthesizer  ports.Synthesizer
	newPolicy    PolicyFactory
	retry        finerrors.RetryConfig
	maxToolCalls int
	logger       logging.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithPolicyFactory replaces the default research policy.
func WithPolicyFactory(f PolicyFactory) EngineOption {
	return func(e *Engine) { e.newPolicy = f }
}

// WithRetryConfig overrides the tool-call retry policy.
func WithRetryConfig(rc finerrors.RetryConfig) EngineOption {
	return func(e *Engine) { e.retry = rc }
}

// WithMaxToolCalls caps tool invocations per question.
func WithMaxToolCalls(n int) EngineOption {
	return func(e *Engine) { e.maxToolCalls = n }
}

// NewEngine builds an orchestration engine over the given registry and
// synthesizer.
func NewEngine(registry ports.ToolRegistry, synthesizer ports.Synthesizer, logger logging.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		registry:     registry,
		synthesizer:  synthesizer,
		newPolicy:    NewResearchPolicy,
		retry:        finerrors.DefaultRetryConfig(),
		maxToolCalls: 10,
		logger:       logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask runs the loop for one question. It fails only when the policy selects
// no tool at all or the final synthesis exhausts its retries; individual tool
// failures degrade the answer instead of aborting.
func (e *Engine) Ask(ctx context.Context, q ports.Question) (ports.Answer, error) {
	pol := e.newPolicy(q)
	st := &State{Question: q}
	phase := PhaseStart
	var toolOutputs []string

	e.logger.Info("loop start: case=%s question=%q", q.CaseID, q.Text)
	phase = PhaseSelectTool

	for st.ToolCalls < e.maxToolCalls {
		if err := ctx.Err(); err != nil {
			return ports.Answer{}, err
		}

		call, ok := pol.Next(st)
		if !ok {
			break
		}
		call.ID = uuid.NewString()
		if call.CaseID == "" {
			call.CaseID = q.CaseID
		}

		phase = PhaseAwaitToolResult
		st.ToolCalls++
		result, err := e.invoke(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return ports.Answer{}, ctx.Err()
			}
			e.logger.Warn("tool %s failed after retries: %v", call.Name, err)

			fb, hasFallback := pol.Fallback(call, st)
			if hasFallback && st.ToolCalls < e.maxToolCalls {
				fb.ID = uuid.NewString()
				fb.CaseID = call.CaseID
				st.ToolCalls++
				result, err = e.invoke(ctx, fb)
				if err == nil {
					e.logger.Info("fallback %s substituted for %s", fb.Name, call.Name)
					call = fb
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return ports.Answer{}, ctx.Err()
				}
				st.Degraded = true
				phase = PhaseSelectTool
				continue
			}
		}

		e.absorb(st, call, result, &toolOutputs)
		pol.Observe(call, result)
		phase = PhaseSelectTool
	}

	if st.ToolCalls == 0 {
		phase = PhaseFailed
		e.logger.Error("loop %s: no tool selected", phase)
		return ports.Answer{}, finerrors.NewPermanentError(nil,
			fmt.Sprintf("no tool applicable for question %q", q.Text))
	}

	phase = PhaseSynthesize
	resp, err := e.synthesizer.Complete(ctx, ports.SynthesisRequest{
		System: systemPrompt,
		Prompt: buildSynthesisPrompt(q, st.Evidence, toolOutputs),
		Metadata: map[string]any{
			"case_id": q.CaseID,
		},
	})
	if err != nil {
		phase = PhaseFailed
		e.logger.Error("loop %s: synthesis failed: %v", phase, err)
		return ports.Answer{}, err
	}

	answer := parseFinalAnswer(resp.Content, st.Evidence)
	answer.Confidence = ports.ConfidenceNormal
	if st.Degraded {
		answer.Confidence = ports.ConfidenceDegraded
	}

	phase = PhaseDone
	e.logger.Info("loop %s: case=%s tool_calls=%d sources=%d degraded=%v",
		phase, q.CaseID, st.ToolCalls, len(answer.Sources), answer.Degraded())
	return answer, nil
}

// invoke runs one tool call through the resilience layer. Only idempotent
// tools are retried; validation failures are permanent and never retried.
func (e *Engine) invoke(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	tool, err := e.registry.Get(call.Name)
	if err != nil {
		return nil, err
	}

	if !tool.Metadata().Idempotent {
		return e.registry.Invoke(ctx, call)
	}

	return finerrors.RetryWithResultAndLog(ctx, e.retry, func(ctx context.Context) (*ports.ToolResult, error) {
		return e.registry.Invoke(ctx, call)
	}, e.logger)
}

// absorb folds a successful tool result into the loop state.
func (e *Engine) absorb(st *State, call ports.ToolCall, result *ports.ToolResult, toolOutputs *[]string) {
	for _, ev := range result.Evidence {
		if ev.URL != "" && st.seenURL(ev.URL) {
			continue
		}
		st.Evidence = append(st.Evidence, ev)
	}

	switch call.Name {
	case "parse_html_page":
		if key, ok := call.Arguments["key"].(string); ok {
			st.DocKeys = append(st.DocKeys, key)
		}
	case "retrieve_information":
		if result.Content != "" {
			*toolOutputs = append(*toolOutputs, result.Content)
		}
	}
}
