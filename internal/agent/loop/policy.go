package loop

import (
	"fmt"
	"regexp"
	"strings"

	"finbench/internal/agent/ports"
)

// Policy selects the next tool call for a question. Implementations must be
// deterministic: given the same state sequence they produce the same calls,
// independent of retry timing.
type Policy interface {
	// Next returns the next call, or ok=false when evidence is sufficient.
	Next(st *State) (ports.ToolCall, bool)

	// Fallback returns an alternate call after the given call exhausted its
	// retries, or ok=false when no substitute exists.
	Fallback(failed ports.ToolCall, st *State) (ports.ToolCall, bool)

	// Observe feeds a successful result back into the policy.
	Observe(call ports.ToolCall, result *ports.ToolResult)
}

// PolicyFactory builds a fresh policy for one question.
type PolicyFactory func(q ports.Question) Policy

var filingsRe = regexp.MustCompile(`(?i)\b(10-K|10-Q|8-K|S-1|DEF 14A|filing|filings|form|annual report|quarterly report|proxy statement|prospectus|SEC|EDGAR)\b`)

type stage int

const (
	stageSearch stage = iota
	stageFilings
	stageParse
	stageRetrieve
	stageDone
)

// researchPolicy is the default staged policy: web search first, a filings
// lookup when the question mentions SEC material, page extraction for the
// top results, then one retrieval pass over the stored documents.
type researchPolicy struct {
	question     ports.Question
	stage        stage
	wantsFilings bool
	parseBudget  int
	parsed       int
	parseQueue   []string
	searchedWeb  bool
	searchedSEC  bool
}

// NewResearchPolicy builds the default policy for one question.
func NewResearchPolicy(q ports.Question) Policy {
	return &researchPolicy{
		question:     q,
		wantsFilings: filingsRe.MatchString(q.Text),
		parseBudget:  2,
	}
}

func (p *researchPolicy) Next(st *State) (ports.ToolCall, bool) {
	switch p.stage {
	case stageSearch:
		p.stage = stageFilings
		p.searchedWeb = true
		return ports.ToolCall{
			Name:      "web_search",
			Arguments: map[string]any{"search_query": p.question.Text},
			CaseID:    p.question.CaseID,
		}, true

	case stageFilings:
		p.stage = stageParse
		if !p.wantsFilings {
			return p.Next(st)
		}
		p.searchedSEC = true
		return ports.ToolCall{
			Name: "edgar_search",
			Arguments: map[string]any{
				"query":         p.question.Text,
				"top_n_results": 5,
			},
			CaseID: p.question.CaseID,
		}, true

	case stageParse:
		if len(p.parseQueue) == 0 {
			p.fillParseQueue(st)
		}
		if p.parsed >= p.parseBudget || len(p.parseQueue) == 0 {
			p.stage = stageRetrieve
			return p.Next(st)
		}
		url := p.parseQueue[0]
		p.parseQueue = p.parseQueue[1:]
		p.parsed++
		return ports.ToolCall{
			Name: "parse_html_page",
			Arguments: map[string]any{
				"url": url,
				"key": fmt.Sprintf("page_%d", p.parsed),
			},
			CaseID: p.question.CaseID,
		}, true

	case stageRetrieve:
		p.stage = stageDone
		if len(st.DocKeys) == 0 {
			return ports.ToolCall{}, false
		}
		return ports.ToolCall{
			Name:      "retrieve_information",
			Arguments: map[string]any{"prompt": retrievalPrompt(p.question.Text, st.DocKeys)},
			CaseID:    p.question.CaseID,
		}, true

	default:
		return ports.ToolCall{}, false
	}
}

func (p *researchPolicy) Fallback(failed ports.ToolCall, st *State) (ports.ToolCall, bool) {
	switch failed.Name {
	case "web_search":
		// A filings search can stand in for a failed web search on
		// finance questions.
		if p.searchedSEC {
			return ports.ToolCall{}, false
		}
		p.searchedSEC = true
		return ports.ToolCall{
			Name: "edgar_search",
			Arguments: map[string]any{
				"query":         p.question.Text,
				"top_n_results": 5,
			},
			CaseID: p.question.CaseID,
		}, true
	case "edgar_search":
		if p.searchedWeb {
			return ports.ToolCall{}, false
		}
		p.searchedWeb = true
		return ports.ToolCall{
			Name:      "web_search",
			Arguments: map[string]any{"search_query": p.question.Text},
			CaseID:    p.question.CaseID,
		}, true
	default:
		return ports.ToolCall{}, false
	}
}

func (p *researchPolicy) Observe(call ports.ToolCall, result *ports.ToolResult) {
	if result == nil {
		return
	}
	if call.Name == "parse_html_page" {
		// Key stored; the state tracks it through the engine.
		return
	}
}

// fillParseQueue takes the first distinct result URLs, skipping anything
// already parsed.
func (p *researchPolicy) fillParseQueue(st *State) {
	seen := make(map[string]bool)
	for _, e := range st.Evidence {
		if e.URL == "" || seen[e.URL] {
			continue
		}
		seen[e.URL] = true
		p.parseQueue = append(p.parseQueue, e.URL)
		if len(p.parseQueue) >= p.parseBudget {
			return
		}
	}
}

func retrievalPrompt(question string, keys []string) string {
	var b strings.Builder
	b.WriteString("Extract the facts needed to answer the question below from the stored documents. ")
	b.WriteString("Quote exact figures where present.\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nDocuments:\n")
	for _, key := range keys {
		fmt.Fprintf(&b, "--- %s ---\n{{%s}}\n", key, key)
	}
	return b.String()
}
