package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbench/internal/agent/ports"
)

func TestFilingsDetection(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{"What did Apple's 10-K say about revenue?", true},
		{"Summarize the latest 8-K filing", true},
		{"Find the proxy statement for Tesla", true},
		{"What appears in SEC EDGAR for CIK 320193?", true},
		{"What was Apple's stock price in March 2025?", false},
		{"How many iPhones were sold last quarter?", false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, filingsRe.MatchString(tt.question))
		})
	}
}

func TestResearchPolicyStopsAfterRetrieval(t *testing.T) {
	q := ports.Question{Text: "What was Acme's revenue?"}
	pol := NewResearchPolicy(q)
	st := &State{Question: q}

	call, ok := pol.Next(st)
	require.True(t, ok)
	assert.Equal(t, "web_search", call.Name)

	// No evidence accumulated, so nothing to parse and nothing stored.
	_, ok = pol.Next(st)
	assert.False(t, ok)

	// Drained policies stay drained.
	_, ok = pol.Next(st)
	assert.False(t, ok)
}

func TestResearchPolicyParsesDistinctURLs(t *testing.T) {
	q := ports.Question{Text: "What was Acme's revenue?"}
	pol := NewResearchPolicy(q)
	st := &State{Question: q}

	_, ok := pol.Next(st)
	require.True(t, ok)

	st.Evidence = []ports.Evidence{
		{URL: "https://example.com/a", Name: "A"},
		{URL: "https://example.com/a", Name: "A again"},
		{URL: "https://example.com/b", Name: "B"},
		{URL: "https://example.com/c", Name: "C"},
	}

	first, ok := pol.Next(st)
	require.True(t, ok)
	assert.Equal(t, "parse_html_page", first.Name)
	assert.Equal(t, "https://example.com/a", first.Arguments["url"])
	assert.Equal(t, "page_1", first.Arguments["key"])

	second, ok := pol.Next(st)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/b", second.Arguments["url"])
	assert.Equal(t, "page_2", second.Arguments["key"])

	// Parse budget reached; with stored documents the retrieval pass runs.
	st.DocKeys = []string{"page_1", "page_2"}
	third, ok := pol.Next(st)
	require.True(t, ok)
	assert.Equal(t, "retrieve_information", third.Name)
	prompt := third.Arguments["prompt"].(string)
	assert.Contains(t, prompt, "{{page_1}}")
	assert.Contains(t, prompt, "{{page_2}}")
	assert.Contains(t, prompt, q.Text)
}

func TestFallbackNeverRepeatsASearch(t *testing.T) {
	q := ports.Question{Text: "What did the 10-K filing report?"}
	pol := NewResearchPolicy(q)
	st := &State{Question: q}

	web, _ := pol.Next(st)
	require.Equal(t, "web_search", web.Name)
	edgar, _ := pol.Next(st)
	require.Equal(t, "edgar_search", edgar.Name)

	// Both searches already issued, so neither has a substitute left.
	_, ok := pol.Fallback(web, st)
	assert.False(t, ok)
	_, ok = pol.Fallback(edgar, st)
	assert.False(t, ok)
}
