// Package loop implements the tool-orchestration loop: deterministic tool
// selection, resilience-wrapped execution, and final answer synthesis.
package loop

import "finbench/internal/agent/ports"

// Phase is the loop's execution phase. Transitions are linear:
// Start -> SelectTool -> AwaitToolResult -> (SelectTool | Synthesize) ->
// Done | Failed.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseSelectTool
	PhaseAwaitToolResult
	PhaseSynthesize
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseSelectTool:
		return "select_tool"
	case PhaseAwaitToolResult:
		return "await_tool_result"
	case PhaseSynthesize:
		return "synthesize"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the mutable per-question loop state. It is owned by a single
// goroutine for the lifetime of one question.
type State struct {
	Question ports.Question

	// Evidence accumulates provenance from every successful tool call.
	Evidence []ports.Evidence

	// DocKeys lists document-store keys written by parse_html_page.
	DocKeys []string

	// ToolCalls counts invocations, including failed ones and fallbacks.
	ToolCalls int

	// Degraded is set when a tool and its fallback both fail; the final
	// answer is then flagged as built from partial evidence.
	Degraded bool
}

// seenURL reports whether a URL is already present in the evidence.
func (s *State) seenURL(url string) bool {
	for _, e := range s.Evidence {
		if e.URL == url {
			return true
		}
	}
	return false
}
