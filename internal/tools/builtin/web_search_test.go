package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
)

func TestWebSearchReturnsOrganicResults(t *testing.T) {
	var gotQuery, gotTBS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotTBS = r.URL.Query().Get("tbs")
		json.NewEncoder(w).Encode(map[string]any{
			"organic_results": []map[string]string{
				{"title": "Apple Q1 2025 Results", "link": "https://example.com/apple", "snippet": "Revenue of $124.3 billion"},
				{"title": "Apple 10-K", "link": "https://example.com/10k", "snippet": "Annual report"},
			},
		})
	}))
	defer srv.Close()

	tool := NewWebSearchTool("test-key", srv.Client(), nil, WithSearchEndpoint(srv.URL))
	res, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"search_query": "apple q1 2025 revenue"},
	})
	require.NoError(t, err)

	assert.Equal(t, "apple q1 2025 revenue", gotQuery)
	assert.Equal(t, "cdr:1,cd_max:04/07/2025", gotTBS)

	var results []SearchResult
	require.NoError(t, json.Unmarshal([]byte(res.Content), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "Apple Q1 2025 Results", results[0].Title)

	require.Len(t, res.Evidence, 2)
	assert.Equal(t, "https://example.com/apple", res.Evidence[0].URL)
	assert.Equal(t, "Apple Q1 2025 Results", res.Evidence[0].Name)
	assert.WithinDuration(t, time.Now(), res.Evidence[0].RetrievedAt, time.Minute)
}

func TestWebSearchTruncatesToTopN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := make([]map[string]string, 5)
		for i := range results {
			results[i] = map[string]string{"title": "r", "link": "https://example.com"}
		}
		json.NewEncoder(w).Encode(map[string]any{"organic_results": results})
	}))
	defer srv.Close()

	tool := NewWebSearchTool("test-key", srv.Client(), nil, WithSearchEndpoint(srv.URL), WithSearchTopN(3))
	res, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"search_query": "q"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Evidence, 3)
}

func TestWebSearchMissingAPIKey(t *testing.T) {
	tool := NewWebSearchTool("", http.DefaultClient, nil)
	_, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"search_query": "q"},
	})
	require.Error(t, err)
	assert.True(t, finerrors.IsPermanent(err))
}

func TestWebSearchServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := NewWebSearchTool("test-key", srv.Client(), nil, WithSearchEndpoint(srv.URL))
	_, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"search_query": "q"},
	})
	require.Error(t, err)
	assert.True(t, finerrors.IsTransient(err))
}

func TestWebSearchMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	tool := NewWebSearchTool("test-key", srv.Client(), nil, WithSearchEndpoint(srv.URL))
	_, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"search_query": "q"},
	})
	require.Error(t, err)
	assert.Equal(t, finerrors.KindMalformedResponse, finerrors.KindOf(err))
}
