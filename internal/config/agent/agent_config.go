package agent

type AgentDefaults struct {
	Workspace   string  `json:"workspace"`
	Model       string  `json:"model"`
	Provider    string  `json:"provider,omitempty"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	MaxToolIter int     `json:"maxToolIterations"`
	// HistoryWindow is the number of stored turns replayed to the model.
	HistoryWindow int    `json:"historyWindow"`
	SystemPrompt  string `json:"systemPrompt,omitempty"`
	// MaxRetries bounds automatic retries of retryable provider failures.
	MaxRetries int `json:"maxRetries"`
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

func defaultAgentDefaults() AgentDefaults {
	return AgentDefaults{
		Workspace:     "~/.tidewire/workspace",
		Model:         "claude-sonnet-4-5",
		MaxTokens:     8192,
		Temperature:   0.7,
		MaxToolIter:   20,
		HistoryWindow: 50,
		MaxRetries:    2,
	}
}

func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{Defaults: defaultAgentDefaults()}
}
