package provider

// ProviderConfig holds credentials and endpoint overrides for one provider.
type ProviderConfig struct {
	APIKey       string            `json:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty"`
}

// ProvidersConfig maps a catalog profile id to its settings.
type ProvidersConfig map[string]ProviderConfig

func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{}
}

// ByName returns the settings for name and whether any were configured.
func (p ProvidersConfig) ByName(name string) (ProviderConfig, bool) {
	c, ok := p[name]
	return c, ok
}

// Configured returns the ids that carry an API key, in order of ids.
func (p ProvidersConfig) Configured(ids []string) []string {
	var out []string
	for _, id := range ids {
		if c, ok := p[id]; ok && c.APIKey != "" {
			out = append(out, id)
		}
	}
	return out
}
