package config

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/providers"
)

// Resolved is the effective provider for a model.
type Resolved struct {
	Profile providers.ProviderProfile
	APIKey  string
	Model   string
}

// KeyLoader supplies keys that are not in the config file.
type KeyLoader func(providerID string) (string, error)

// Resolve picks the provider profile and key for model. If model is empty,
// agents.defaults.model is used.
//
// Priority order:
//  1. agents.defaults.provider when set
//  2. "provider/" prefix or model-name keyword (catalog order)
//  3. first catalog provider with a configured key
//
// A "provider/" prefix naming the chosen profile is stripped from the model.
func (c *Config) Resolve(model string, catalog *providers.Catalog, keys KeyLoader) (Resolved, error) {
	if model == "" {
		model = c.Agents.Defaults.Model
	}

	var (
		profile providers.ProviderProfile
		ok      bool
	)
	if id := c.Agents.Defaults.Provider; id != "" {
		p, err := catalog.Get(id)
		if err != nil {
			return Resolved{}, err
		}
		profile, ok = p, true
	}
	if !ok {
		profile, ok = catalog.FindByModel(model)
	}
	if !ok {
		var ids []string
		for _, p := range catalog.All() {
			ids = append(ids, p.ID())
		}
		if configured := c.Providers.Configured(ids); len(configured) > 0 {
			profile, _ = catalog.Lookup(configured[0])
			ok = true
		}
	}
	if !ok {
		return Resolved{}, fmt.Errorf("no provider matches model %q", model)
	}

	pc, _ := c.Providers.ByName(profile.ID())
	profile = profile.WithBaseEndpoint(pc.APIBase).WithExtraHeaders(pc.ExtraHeaders)
	key := pc.APIKey
	if key == "" && keys != nil {
		if k, err := keys(profile.ID()); err == nil {
			key = k
		}
	}

	if prefix, rest, cut := strings.Cut(model, "/"); cut && strings.EqualFold(prefix, profile.ID()) {
		model = rest
	}
	if model == "" {
		model = profile.DefaultModel()
	}
	return Resolved{Profile: profile, APIKey: key, Model: model}, nil
}
