package tool

// WebSearchConfig configures the Brave web-search tool.
type WebSearchConfig struct {
	APIKey     string  `json:"apiKey"`
	MaxResults int     `json:"maxResults"`
	PerSecond  float64 `json:"perSecond"`
}

func DefaultWebSearchConfig() WebSearchConfig {
	return WebSearchConfig{MaxResults: 5, PerSecond: 1}
}

// WebFetchConfig configures fetch_page.
type WebFetchConfig struct {
	MaxChars int `json:"maxChars"`
}

// WebToolsConfig groups web-related tool settings.
type WebToolsConfig struct {
	Search WebSearchConfig `json:"search"`
	Fetch  WebFetchConfig  `json:"fetch"`
}

func DefaultWebToolsConfig() WebToolsConfig {
	return WebToolsConfig{Search: DefaultWebSearchConfig(), Fetch: WebFetchConfig{MaxChars: 50000}}
}
