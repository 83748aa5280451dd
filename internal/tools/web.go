package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

const (
	webUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	maxRedirects   = 5
	maxFetchBytes  = 5 << 20
	braveSearchURL = "https://api.search.brave.com/res/v1/web/search"
)

// validateURL checks that rawURL is http(s) with a host.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http/https allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing domain in URL")
	}
	return nil
}

// ---------------------------------------------------------------------------
// WebSearchTool
// ---------------------------------------------------------------------------

// WebSearchOptions configures WebSearchTool.
type WebSearchOptions struct {
	APIKey     string
	Endpoint   string  // defaults to the Brave web search API
	MaxResults int     // defaults to 5
	PerSecond  float64 // request rate limit; 0 disables limiting
	Client     *http.Client
}

// WebSearchTool searches the web using the Brave Search API.
type WebSearchTool struct {
	apiKey     string
	endpoint   string
	maxResults int
	limiter    *rate.Limiter
	httpClient *http.Client
}

func NewWebSearchTool(opts WebSearchOptions) *WebSearchTool {
	t := &WebSearchTool{
		apiKey:     opts.APIKey,
		endpoint:   opts.Endpoint,
		maxResults: opts.MaxResults,
		httpClient: opts.Client,
	}
	if t.endpoint == "" {
		t.endpoint = braveSearchURL
	}
	if t.maxResults <= 0 {
		t.maxResults = 5
	}
	if t.httpClient == nil {
		t.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.PerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.PerSecond), 1)
	}
	return t
}

func (t *WebSearchTool) Definition() schema.ToolDefinition {
	return def(ToolWebSearch, "Search the web. Returns titles, URLs, and snippets.", []string{"query"},
		schema.Param("query", schema.TypeString, "Search query"),
		schema.Param("count", schema.TypeInteger, "Results (1-10)"),
	)
}

func (t *WebSearchTool) Execute(ctx context.Context, args Args) (Output, error) {
	if t.apiKey == "" {
		return Output{}, NewError(KindUnavailable, false, "web search API key not configured")
	}
	query, err := args.RequireString("query")
	if err != nil {
		return Output{}, err
	}
	n := min(max(args.Int("count", t.maxResults), 1), 10)

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return Output{}, Failed(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return Output{}, Failed(err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(n))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Output{}, Failed(fmt.Errorf("search request: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return Output{}, NewError(KindExecutionFailed, retryable, "search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Output{}, Failed(fmt.Errorf("parse search response: %w", err))
	}

	results := data.Web.Results
	if len(results) == 0 {
		return Textf("No results for: %s", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for: %s\n\n", query)
	for i, item := range results {
		if i >= n {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n   %s", i+1, item.Title, item.URL)
		if item.Description != "" {
			sb.WriteString("\n   " + item.Description)
		}
		sb.WriteString("\n")
	}
	return Text(sb.String()), nil
}

// ---------------------------------------------------------------------------
// FetchPageTool
// ---------------------------------------------------------------------------

// FetchPageTool fetches a URL and extracts readable content.
type FetchPageTool struct {
	maxChars   int
	httpClient *http.Client
}

// NewFetchPageTool creates a FetchPageTool. maxChars defaults to 50000.
func NewFetchPageTool(maxChars int) *FetchPageTool {
	if maxChars <= 0 {
		maxChars = 50000
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &FetchPageTool{maxChars: maxChars, httpClient: client}
}

func (t *FetchPageTool) Definition() schema.ToolDefinition {
	return def(ToolFetchPage, "Fetch a URL and extract readable content (HTML to markdown or text).", []string{"url"},
		schema.Param("url", schema.TypeString, "URL to fetch"),
		schema.EnumParam("extract_mode", "Output format (default markdown)", "markdown", "text"),
		schema.Param("max_chars", schema.TypeInteger, "Truncate the extracted text to this many characters"),
	)
}

func (t *FetchPageTool) Execute(ctx context.Context, args Args) (Output, error) {
	rawURL, err := args.RequireString("url")
	if err != nil {
		return Output{}, err
	}
	if err := validateURL(rawURL); err != nil {
		return Output{}, InvalidArgs("URL validation failed: %v", err)
	}
	extractMode := args.String("extract_mode")
	if extractMode == "" {
		extractMode = "markdown"
	}
	maxChars := max(args.Int("max_chars", t.maxChars), 100)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Output{}, InvalidArgs("%v", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Output{}, Failed(fmt.Errorf("fetch %s: %w", rawURL, err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Output{}, Failed(fmt.Errorf("read %s: %w", rawURL, err))
	}
	if resp.StatusCode >= 400 {
		return Output{}, NewError(KindExecutionFailed, resp.StatusCode >= 500, "fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	ctype := resp.Header.Get("Content-Type")
	finalURL := resp.Request.URL.String()

	var text, extractor string
	switch {
	case strings.Contains(ctype, "application/json"):
		var jsonData any
		if err := json.Unmarshal(bodyBytes, &jsonData); err == nil {
			formatted, _ := json.MarshalIndent(jsonData, "", "  ")
			text = string(formatted)
		} else {
			text = string(bodyBytes)
		}
		extractor = "json"

	case strings.Contains(ctype, "text/html") || isHTMLPrefix(bodyBytes):
		parsedURL, _ := url.Parse(finalURL)
		article, err := readability.FromReader(bytes.NewReader(bodyBytes), parsedURL)
		if err == nil {
			if extractMode == "markdown" {
				text = htmlToMarkdown(article.Content)
			} else {
				text = stripHTMLTags(article.Content)
			}
			if article.Title != "" {
				text = "# " + article.Title + "\n\n" + text
			}
		} else {
			text = stripHTMLTags(string(bodyBytes))
		}
		extractor = "readability"

	default:
		text = string(bodyBytes)
		extractor = "raw"
	}

	truncated := len(text) > maxChars
	if truncated {
		text = text[:maxChars]
	}

	return Output{
		Text: text,
		Metadata: map[string]any{
			"url":       rawURL,
			"finalUrl":  finalURL,
			"status":    resp.StatusCode,
			"extractor": extractor,
			"truncated": truncated,
		},
	}, nil
}

// isHTMLPrefix returns true if the body starts with an HTML declaration.
func isHTMLPrefix(b []byte) bool {
	prefix := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}

// ---------------------------------------------------------------------------
// HTML → text/markdown helpers
// ---------------------------------------------------------------------------

var (
	reScript    = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle     = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTags      = regexp.MustCompile(`<[^>]+>`)
	reSpaces    = regexp.MustCompile(`[ \t]+`)
	reNewlines  = regexp.MustCompile(`\n{3,}`)
	reLinks     = regexp.MustCompile(`(?is)<a\s+[^>]*href=["']([^"']+)["'][^>]*>([\s\S]*?)</a>`)
	reHeadings  = regexp.MustCompile(`(?is)<h([1-6])[^>]*>([\s\S]*?)</h[1-6]>`)
	reListItems = regexp.MustCompile(`(?is)<li[^>]*>([\s\S]*?)</li>`)
	reBlockEnd  = regexp.MustCompile(`(?is)</(p|div|section|article)>`)
	reLineBreak = regexp.MustCompile(`(?is)<(br|hr)\s*/?>`)
)

// stripHTMLTags removes all HTML tags and normalizes whitespace.
func stripHTMLTags(text string) string {
	text = reScript.ReplaceAllString(text, "")
	text = reStyle.ReplaceAllString(text, "")
	text = reTags.ReplaceAllString(text, "")
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// htmlToMarkdown converts HTML to a simple markdown representation.
func htmlToMarkdown(htmlText string) string {
	text := reLinks.ReplaceAllStringFunc(htmlText, func(m string) string {
		parts := reLinks.FindStringSubmatch(m)
		if len(parts) < 3 {
			return m
		}
		return fmt.Sprintf("[%s](%s)", stripHTMLTags(parts[2]), parts[1])
	})
	text = reHeadings.ReplaceAllStringFunc(text, func(m string) string {
		parts := reHeadings.FindStringSubmatch(m)
		if len(parts) < 3 {
			return m
		}
		hashes := strings.Repeat("#", int(parts[1][0]-'0'))
		return fmt.Sprintf("\n%s %s\n", hashes, stripHTMLTags(parts[2]))
	})
	text = reListItems.ReplaceAllStringFunc(text, func(m string) string {
		parts := reListItems.FindStringSubmatch(m)
		if len(parts) < 2 {
			return m
		}
		return "\n- " + stripHTMLTags(parts[1])
	})
	text = reBlockEnd.ReplaceAllString(text, "\n\n")
	text = reLineBreak.ReplaceAllString(text, "\n")
	return normalizeWhitespace(stripHTMLTags(text))
}

func normalizeWhitespace(text string) string {
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
