package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "golang generics", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"Generics","url":"https://go.dev/doc/tutorial/generics","description":"Tutorial"},
			{"title":"Spec","url":"https://go.dev/ref/spec"},
			{"title":"Extra","url":"https://example.com"}]}}`))
	}))
	defer srv.Close()

	tool := NewWebSearchTool(WebSearchOptions{APIKey: "key-1", Endpoint: srv.URL, PerSecond: 100})
	out, err := tool.Execute(context.Background(), Args{"query": "golang generics", "count": 2})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "1. Generics\n   https://go.dev/doc/tutorial/generics\n   Tutorial")
	assert.Contains(t, out.Text, "2. Spec")
	assert.NotContains(t, out.Text, "Extra")
}

func TestWebSearch_Failures(t *testing.T) {
	_, err := NewWebSearchTool(WebSearchOptions{}).Execute(context.Background(), Args{"query": "x"})
	kind, retryable := Classify(err)
	assert.Equal(t, KindUnavailable, kind)
	assert.False(t, retryable)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err = NewWebSearchTool(WebSearchOptions{APIKey: "k", Endpoint: srv.URL}).Execute(context.Background(), Args{"query": "x"})
	kind, retryable = Classify(err)
	assert.Equal(t, KindExecutionFailed, kind)
	assert.True(t, retryable)
	assert.Contains(t, err.Error(), "429")
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<!doctype html><html><head><title>Tide tables</title></head><body>
				<article><h1>Tide tables</h1>
				<p>High tide arrives twice a day, roughly every twelve hours and twenty-five minutes. Coastal towns
				publish tables so that fishermen and swimmers can plan ahead. The moon drives most of the effect.</p>
				<p>Spring tides happen near new and full moons, when the sun and moon line up and the range is largest.</p>
				</article></body></html>`))
		case "/data":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"a":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	tool := NewFetchPageTool(0)

	out, err := tool.Execute(context.Background(), Args{"url": srv.URL + "/article"})
	require.NoError(t, err)
	assert.Equal(t, "readability", out.Metadata["extractor"])
	assert.Contains(t, out.Text, "High tide arrives twice a day")
	assert.NotContains(t, out.Text, "<p>")

	out, err = tool.Execute(context.Background(), Args{"url": srv.URL + "/data"})
	require.NoError(t, err)
	assert.Equal(t, "json", out.Metadata["extractor"])
	assert.Contains(t, out.Text, `"a": 1`)

	_, err = tool.Execute(context.Background(), Args{"url": srv.URL + "/missing"})
	kind, retryable := Classify(err)
	assert.Equal(t, KindExecutionFailed, kind)
	assert.False(t, retryable)

	_, err = tool.Execute(context.Background(), Args{"url": "file:///etc/passwd"})
	kind, _ = Classify(err)
	assert.Equal(t, KindInvalidArguments, kind)
}
