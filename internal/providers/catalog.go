package providers

import (
	"fmt"
	"sync"
)

// Catalog is the ordered set of known provider profiles. Order is match
// priority for FindByModel.
type Catalog struct {
	mu       sync.RWMutex
	profiles []ProviderProfile
}

// NewCatalog returns a catalog seeded with the built-in profiles.
func NewCatalog() *Catalog {
	c := &Catalog{profiles: make([]ProviderProfile, 0, len(builtinSpecs))}
	for _, spec := range builtinSpecs {
		c.profiles = append(c.profiles, mustProfile(spec))
	}
	return c
}

// Add registers p. A profile with the same id is replaced in place so user
// overrides keep the built-in priority.
func (c *Catalog) Add(p ProviderProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.profiles {
		if c.profiles[i].id == p.id {
			c.profiles[i] = p
			return
		}
	}
	c.profiles = append(c.profiles, p)
}

// AddSpecs builds and adds every spec, stopping at the first invalid one.
func (c *Catalog) AddSpecs(specs []ProfileSpec) error {
	for _, spec := range specs {
		p, err := NewProfile(spec)
		if err != nil {
			return err
		}
		c.Add(p)
	}
	return nil
}

// Lookup returns the profile registered under id.
func (c *Catalog) Lookup(id string) (ProviderProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.profiles {
		if p.id == id {
			return p, true
		}
	}
	return ProviderProfile{}, false
}

// Get is Lookup returning an error for unknown ids.
func (c *Catalog) Get(id string) (ProviderProfile, error) {
	p, ok := c.Lookup(id)
	if !ok {
		return ProviderProfile{}, fmt.Errorf("unknown provider %q", id)
	}
	return p, nil
}

// FindByModel matches a profile by explicit "provider/" prefix first, then by
// model-name keyword.
func (c *Catalog) FindByModel(model string) (ProviderProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.profiles {
		if p.matchesModel(model) {
			return p, true
		}
	}
	return ProviderProfile{}, false
}

// All returns the profiles in priority order.
func (c *Catalog) All() []ProviderProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ProviderProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// builtinSpecs is the default catalog. Order = match priority.
var builtinSpecs = []ProfileSpec{
	{
		ID:           "openrouter",
		DisplayName:  "OpenRouter",
		Wire:         WireOpenAI,
		BaseEndpoint: "https://openrouter.ai/api/v1",
		DefaultModel: "anthropic/claude-sonnet-4.5",
		Keywords:     []string{"openrouter"},
	},
	{
		ID:           "anthropic",
		DisplayName:  "Anthropic",
		Wire:         WireAnthropic,
		BaseEndpoint: "https://api.anthropic.com/v1",
		DefaultModel: "claude-sonnet-4-5",
		Keywords:     []string{"anthropic", "claude"},
	},
	{
		ID:           "openai",
		DisplayName:  "OpenAI",
		Wire:         WireOpenAI,
		BaseEndpoint: "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		Keywords:     []string{"openai", "gpt", "o3", "o4"},
	},
	{
		ID:           "gemini",
		DisplayName:  "Gemini",
		Wire:         WireGoogle,
		BaseEndpoint: "https://generativelanguage.googleapis.com/v1beta",
		DefaultModel: "gemini-2.5-flash",
		Keywords:     []string{"gemini"},
	},
	{
		ID:           "deepseek",
		DisplayName:  "DeepSeek",
		Wire:         WireOpenAI,
		BaseEndpoint: "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
		Keywords:     []string{"deepseek"},
	},
	{
		ID:           "groq",
		DisplayName:  "Groq",
		Wire:         WireOpenAI,
		BaseEndpoint: "https://api.groq.com/openai/v1",
		DefaultModel: "llama-3.3-70b-versatile",
		Keywords:     []string{"groq"},
	},
	{
		ID:           "moonshot",
		DisplayName:  "Moonshot",
		Wire:         WireOpenAI,
		BaseEndpoint: "https://api.moonshot.ai/v1",
		DefaultModel: "kimi-k2-0905-preview",
		Keywords:     []string{"moonshot", "kimi"},
	},
	{
		ID:           "dashscope",
		DisplayName:  "DashScope",
		Wire:         WireOpenAI,
		BaseEndpoint: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		DefaultModel: "qwen-plus",
		Keywords:     []string{"qwen", "dashscope"},
	},
	{
		ID:           "minimax",
		DisplayName:  "MiniMax",
		Wire:         WireOpenAI,
		BaseEndpoint: "https://api.minimax.io/v1",
		DefaultModel: "MiniMax-M2",
		Keywords:     []string{"minimax"},
	},
	{
		ID:           "vllm",
		DisplayName:  "vLLM/Local",
		Wire:         WireOpenAI,
		BaseEndpoint: "http://localhost:8000/v1",
		Keywords:     []string{"vllm"},
	},
}
