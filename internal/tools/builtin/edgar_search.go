package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"finbench/internal/agent/ports"
	"finbench/internal/config"
	finerrors "finbench/internal/errors"
	"finbench/internal/httpclient"
	"finbench/internal/logging"
)

const secFullTextSearchEndpoint = "https://api.sec-api.io/full-text-search"

// Filing is one filing record returned by the full-text search.
type Filing struct {
	AccessionNo   string `json:"accessionNo"`
	CIK           string `json:"cik"`
	CompanyName   string `json:"companyNameLong"`
	Ticker        string `json:"ticker,omitempty"`
	FormType      string `json:"formType"`
	Description   string `json:"description,omitempty"`
	FiledAt       string `json:"filedAt"`
	LinkToFiling  string `json:"linkToFilingDetails"`
	DocumentTitle string `json:"documentFormatFiles,omitempty"`
}

// EdgarSearchTool searches SEC filings through the sec-api.io full-text
// search endpoint. The end date is clamped to the knowledge cutoff.
type EdgarSearchTool struct {
	apiKey   string
	client   *http.Client
	endpoint string
	logger   logging.Logger
}

// EdgarSearchOption customizes an EdgarSearchTool.
type EdgarSearchOption func(*EdgarSearchTool)

// WithEdgarEndpoint overrides the sec-api.io endpoint, used by tests.
func WithEdgarEndpoint(endpoint string) EdgarSearchOption {
	return func(t *EdgarSearchTool) { t.endpoint = endpoint }
}

// NewEdgarSearchTool builds the edgar_search tool.
func NewEdgarSearchTool(apiKey string, client *http.Client, logger logging.Logger, opts ...EdgarSearchOption) *EdgarSearchTool {
	t := &EdgarSearchTool{
		apiKey:   apiKey,
		client:   client,
		endpoint: secFullTextSearchEndpoint,
		logger:   logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *EdgarSearchTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:       "edgar_search",
		Version:    "1.0",
		Category:   "search",
		Tags:       []string{"sec", "filings", "finance"},
		Idempotent: true,
	}
}

func (t *EdgarSearchTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "edgar_search",
		Description: "Search the EDGAR database through the SEC API. " +
			"Provide a query, form types, CIKs, a date range, a page number, and a result cap. " +
			"Results are filing metadata records, not full filing text.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query": {
					Type:        "string",
					Description: "The keyword or phrase to search, such as 'substantial doubt' OR 'material weakness'",
				},
				"form_types": {
					Type:        "array",
					Description: "Limits search to specific SEC form types, e.g. ['8-K', '10-Q']",
					Items:       &ports.Property{Type: "string"},
				},
				"ciks": {
					Type:        "array",
					Description: "Filters results to filings by the given CIK numbers",
					Items:       &ports.Property{Type: "string"},
				},
				"start_date": {
					Type:        "string",
					Description: "Start of the search range in yyyy-mm-dd format, e.g. '2024-01-01'",
				},
				"end_date": {
					Type:        "string",
					Description: "End of the search range in yyyy-mm-dd format",
				},
				"page": {
					Type:        "string",
					Description: "Pagination for results, default '1'",
				},
				"top_n_results": {
					Type:        "integer",
					Description: "The top N results to return after the query",
				},
			},
			Required: []string{"query"},
		},
	}
}

type edgarQuery struct {
	Query     string   `json:"query"`
	FormTypes []string `json:"formTypes,omitempty"`
	CIKs      []string `json:"ciks,omitempty"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
	Page      string   `json:"page,omitempty"`
}

// Execute runs the full-text search and truncates to top_n_results.
func (t *EdgarSearchTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	args := call.Arguments
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("%w: query must be a non-empty string", finerrors.ErrInvalidArguments)
	}
	if t.apiKey == "" {
		return nil, finerrors.NewPermanentError(nil, "SEC_EDGAR_API_KEY is not set")
	}

	endDate, _ := args["end_date"].(string)
	if endDate == "" || endDate > config.KnowledgeCutoff {
		endDate = config.KnowledgeCutoff
	}
	page, _ := args["page"].(string)
	if page == "" {
		page = "1"
	}
	topN := intArg(args, "top_n_results", 10)

	payload := edgarQuery{
		Query:     query,
		FormTypes: stringSliceArg(args, "form_types"),
		CIKs:      stringSliceArg(args, "ciks"),
		StartDate: stringArg(args, "start_date"),
		EndDate:   endDate,
		Page:      page,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "encoding filing query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "building filing request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, finerrors.FromHTTPStatus("edgar_search", resp.StatusCode)
	}

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, maxToolResponseBytes)
	if err != nil {
		return nil, finerrors.NewTransientError(err, "reading filing response")
	}

	var result struct {
		Total   json.RawMessage `json:"total"`
		Filings []Filing        `json:"filings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &finerrors.MalformedResponseError{Endpoint: "edgar_search", Err: err}
	}

	filings := result.Filings
	if topN > 0 && len(filings) > topN {
		filings = filings[:topN]
	}
	t.logger.Debug("edgar_search returned %d filings for %q (end_date=%s)", len(filings), query, endDate)

	content, err := json.Marshal(filings)
	if err != nil {
		return nil, finerrors.NewPermanentError(err, "encoding filings")
	}

	now := time.Now()
	evidence := make([]ports.Evidence, 0, len(filings))
	for _, f := range filings {
		name := f.CompanyName
		if f.FormType != "" {
			name = fmt.Sprintf("%s (%s)", f.CompanyName, f.FormType)
		}
		evidence = append(evidence, ports.Evidence{
			URL:         f.LinkToFiling,
			Name:        name,
			Snippet:     f.Description,
			RetrievedAt: now,
		})
	}

	return &ports.ToolResult{
		CallID:   call.ID,
		Content:  string(content),
		Evidence: evidence,
		Metadata: map[string]any{"filing_count": len(filings), "end_date": endDate},
	}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
