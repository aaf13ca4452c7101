package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"finbench/internal/agent/ports"
	"finbench/internal/config"
	finerrors "finbench/internal/errors"
	"finbench/internal/httpclient"
	"finbench/internal/logging"
)

const (
	serpAPIEndpoint = "https://serpapi.com/search.json"

	// Responses beyond this size indicate a misbehaving endpoint, not a
	// search result page.
	maxToolResponseBytes = 10 << 20
)

// searchDateCeiling converts the knowledge cutoff into SerpAPI's tbs
// date-range syntax (MM/DD/YYYY). Results newer than the cutoff would make
// answers irreproducible against the reference dataset.
func searchDateCeiling() string {
	t, err := time.Parse("2006-01-02", config.KnowledgeCutoff)
	if err != nil {
		// The cutoff is a compile-time constant; this cannot happen.
		panic(err)
	}
	return "cdr:1,cd_max:" + t.Format("01/02/2006")
}

// SearchResult is one organic result from the search engine.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// WebSearchTool queries the web through SerpAPI with a hard date ceiling.
type WebSearchTool struct {
	apiKey   string
	topN     int
	client   *http.Client
	endpoint string
	logger   logging.Logger
}

// WebSearchOption customizes a WebSearchTool.
type WebSearchOption func(*WebSearchTool)

// WithSearchEndpoint overrides the SerpAPI endpoint, used by tests.
func WithSearchEndpoint(endpoint string) WebSearchOption {
	return func(t *WebSearchTool) { t.endpoint = endpoint }
}

// WithSearchTopN caps the number of returned results.
func WithSearchTopN(n int) WebSearchOption {
	return func(t *WebSearchTool) { t.topN = n }
}

// NewWebSearchTool builds the web_search tool. The HTTP client is injected
// so callers control timeouts and circuit breaking.
func NewWebSearchTool(apiKey string, client *http.Client, logger logging.Logger, opts ...WebSearchOption) *WebSearchTool {
	t := &WebSearchTool{
		apiKey:   apiKey,
		topN:     10,
		client:   client,
		endpoint: serpAPIEndpoint,
		logger:   logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSearchTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:       "web_search",
		Version:    "1.0",
		Category:   "search",
		Tags:       []string{"web", "finance"},
		Idempotent: true,
	}
}

func (t *WebSearchTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for information",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"search_query": {
					Type:        "string",
					Description: "The query to search for",
				},
			},
			Required: []string{"search_query"},
		},
	}
}

// Execute runs the search and returns organic results as JSON content plus
// one Evidence entry per result.
func (t *WebSearchTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query, _ := call.Arguments["search_query"].(string)
	if query == "" {
		return nil, fmt.Errorf("%w: search_query must be a non-empty string", finerrors.ErrInvalidArguments)
	}
	if t.apiKey == "" {
		return nil, finerrors.NewPermanentError(nil, "SERP_API_KEY is not set")
	}

	params := url.Values{}
	params.Set("api_key", t.apiKey)
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(t.topN))
	params.Set("tbs", searchDateCeiling())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "building search request")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, finerrors.FromHTTPStatus("web_search", resp.StatusCode)
	}

	body, err := httpclient.ReadAllWithLimit(resp.Body, maxToolResponseBytes)
	if err != nil {
		return nil, finerrors.NewTransientError(err, "reading search response")
	}

	var payload struct {
		OrganicResults []SearchResult `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &finerrors.MalformedResponseError{Endpoint: "web_search", Err: err}
	}

	results := payload.OrganicResults
	if len(results) > t.topN {
		results = results[:t.topN]
	}
	t.logger.Debug("web_search returned %d results for %q", len(results), query)

	content, err := json.Marshal(results)
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "encoding search results")
	}

	now := time.Now()
	evidence := make([]ports.Evidence, 0, len(results))
	for _, r := range results {
		evidence = append(evidence, ports.Evidence{
			URL:         r.Link,
			Name:        r.Title,
			Snippet:     r.Snippet,
			RetrievedAt: now,
		})
	}

	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  string(content),
		Evidence: evidence,
		Metadata: map[string]any{"result_count": len(results)},
	}, nil
}
