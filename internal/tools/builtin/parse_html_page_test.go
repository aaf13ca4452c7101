package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbench/internal/agent/ports"
	finerrors "finbench/internal/errors"
)

const samplePage = `<html>
<head><title>Acme 10-K Summary</title><style>body { color: red; }</style></head>
<body>
<nav>Home | About</nav>
<script>alert("tracking");</script>
<h1>Annual Report</h1>
<p>Total revenue was   $383.3 billion   in fiscal 2024.</p>
<footer>Copyright Acme</footer>
</body>
</html>`

func TestParseHTMLPageStoresExtractedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "finbench-test", r.Header.Get("User-Agent"))
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	store := NewDocStore()
	tool := NewParseHTMLTool(store, "finbench-test", srv.Client(), nil)

	res, err := tool.Execute(context.Background(), ports.ToolCall{
		ID:        "c1",
		Arguments: map[string]any{"url": srv.URL, "key": "acme_10k"},
	})
	require.NoError(t, err)

	stored, ok := store.Get("acme_10k")
	require.True(t, ok)
	assert.Contains(t, stored, "Annual Report")
	assert.Contains(t, stored, "Total revenue was")
	assert.Contains(t, stored, "$383.3 billion")
	assert.NotContains(t, stored, "alert")
	assert.NotContains(t, stored, "color: red")
	assert.NotContains(t, stored, "Home | About")
	assert.NotContains(t, stored, "Copyright Acme")

	assert.Contains(t, res.Content, "saved to the data storage under the key: acme_10k")
	assert.Contains(t, res.Content, "acme_10k")
	assert.NotContains(t, res.Content, "WARNING")

	require.Len(t, res.Evidence, 1)
	assert.Equal(t, srv.URL, res.Evidence[0].URL)
	assert.Equal(t, "Acme 10-K Summary", res.Evidence[0].Name)
}

func TestParseHTMLPageWarnsOnOverwrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	store := NewDocStore()
	store.Put("acme_10k", "previous content")
	tool := NewParseHTMLTool(store, "finbench-test", srv.Client(), nil)

	res, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"url": srv.URL, "key": "acme_10k"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "WARNING: The key already exists")

	stored, _ := store.Get("acme_10k")
	assert.NotEqual(t, "previous content", stored)
}

func TestParseHTMLPageListsAllKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	store := NewDocStore()
	store.Put("earlier_doc", "x")
	tool := NewParseHTMLTool(store, "finbench-test", srv.Client(), nil)

	res, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"url": srv.URL, "key": "new_doc"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "earlier_doc")
	assert.Contains(t, res.Content, "new_doc")
}

func TestParseHTMLPageNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := NewParseHTMLTool(NewDocStore(), "finbench-test", srv.Client(), nil)
	_, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"url": srv.URL, "key": "k"},
	})
	require.Error(t, err)
	assert.True(t, finerrors.IsPermanent(err))
}

func TestParseHTMLPageMissingArguments(t *testing.T) {
	tool := NewParseHTMLTool(NewDocStore(), "finbench-test", http.DefaultClient, nil)
	_, err := tool.Execute(context.Background(), ports.ToolCall{
		Arguments: map[string]any{"url": "https://example.com"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, finerrors.ErrInvalidArguments)
}
