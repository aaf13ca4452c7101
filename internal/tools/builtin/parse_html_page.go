package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
	"finbench/internal/logging"
)

// Elements that carry no financial content. Dropping them before text
// extraction keeps filings and articles readable for the oracle.
var strippedSelectors = []string{"script", "style", "noscript", "nav", "header", "footer", "aside", "iframe", "form"}

// ParseHTMLTool fetches a page, extracts its readable text, and stores the
// result in the loop's document store to keep page bodies out of the
// conversation.
type ParseHTMLTool struct {
	store     *DocStore
	userAgent string
	client    *http.Client
	logger    logging.Logger
}

// NewParseHTMLTool builds the parse_html_page tool bound to one loop's store.
func NewParseHTMLTool(store *DocStore, userAgent string, client *http.Client, logger logging.Logger) *ParseHTMLTool {
	return &ParseHTMLTool{
		store:     store,
		userAgent: userAgent,
		client:    client,
		logger:    logging.OrNop(logger),
	}
}

func (t *ParseHTMLTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{
		Name:       "parse_html_page",
		Version:    "1.0",
		Category:   "extraction",
		Tags:       []string{"html", "document"},
		Idempotent: true,
	}
}

func (t *ParseHTMLTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name: "parse_html_page",
		Description: "Parse an HTML page and save its text content outside the conversation " +
			"to avoid context window issues. Provide the URL to parse and the key to store " +
			"the result under.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"url": {
					Type:        "string",
					Description: "The URL of the HTML page to parse",
				},
				"key": {
					Type:        "string",
					Description: "The key to store the parsed text under",
				},
			},
			Required: []string{"url", "key"},
		},
	}
}

// Execute fetches and extracts the page, then reports the stored key and
// every key currently in the store.
func (t *ParseHTMLTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	pageURL, _ := call.Arguments["url"].(string)
	key, _ := call.Arguments["key"].(string)
	if pageURL == "" || key == "" {
		return nil, fmt.Errorf("%w: url and key must be non-empty strings", finerrors.ErrInvalidArguments)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, finerrors.NewPermanentError(err, fmt.Sprintf("invalid url %q", pageURL))
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, finerrors.NewTransientError(err,
				"timeout parsing HTML page; the URL might be blocked or the server is slow to respond")
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, finerrors.FromHTTPStatus("parse_html_page", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxToolResponseBytes))
	if err != nil {
		return nil, &finerrors.MalformedResponseError{Endpoint: "parse_html_page", Err: err}
	}

	text := extractText(doc)
	if text == "" {
		return nil, finerrors.NewPermanentError(nil,
			fmt.Sprintf("no readable text extracted from %s", pageURL))
	}

	overwrote := t.store.Put(key, text)
	t.logger.Debug("parse_html_page stored %d chars under %q (overwrote=%v)", len(text), key, overwrote)

	var b strings.Builder
	if overwrote {
		b.WriteString("WARNING: The key already exists in the data storage. The new result overwrites the old one.\n")
	}
	fmt.Fprintf(&b, "SUCCESS: The result has been saved to the data storage under the key: %s.\n", key)
	b.WriteString("The data storage currently contains the following keys:\n")
	b.WriteString(strings.Join(t.store.Keys(), "\n"))

	return &ports.ToolResult{
		CallID:  call.ID,
		Content: b.String(),
		Evidence: []ports.Evidence{{
			URL:         pageURL,
			Name:        pageTitle(doc, pageURL),
			RetrievedAt: time.Now(),
		}},
		Metadata: map[string]any{"key": key, "chars": len(text), "overwrote": overwrote},
	}, nil
}

// extractText drops non-content elements and collapses whitespace so the
// stored document is line-oriented prose.
func extractText(doc *goquery.Document) string {
	doc.Find(strings.Join(strippedSelectors, ", ")).Remove()

	raw := doc.Text()
	var chunks []string
	for _, line := range strings.Split(raw, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			phrase = strings.TrimSpace(phrase)
			if phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

func pageTitle(doc *goquery.Document, fallback string) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return fallback
	}
	return title
}
