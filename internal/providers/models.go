package providers

import (
	"context"
	"net/http"
	"sort"
	"strings"
)

// ListModels returns the model ids the key can access. It doubles as a
// credential check: a rejected key surfaces as *schema.ProviderTransportError.
func ListModels(ctx context.Context, client *http.Client, profile ProviderProfile, apiKey string) ([]string, error) {
	t := transport{client: client}
	var headers map[string]string
	if profile.Wire() == WireAnthropic {
		headers = map[string]string{"anthropic-version": anthropicVersion}
	}
	raw, err := t.do(ctx, http.MethodGet, profile, apiKey, profile.BaseEndpoint()+"/models", nil, headers)
	if err != nil {
		return nil, err
	}

	var ids []string
	switch profile.Wire() {
	case WireGoogle:
		var body struct {
			Models []struct {
				Name string `json:"name"`
			} `json:"models"`
		}
		if err := decodeBody(profile.ID(), raw, &body); err != nil {
			return nil, err
		}
		for _, m := range body.Models {
			ids = append(ids, strings.TrimPrefix(m.Name, "models/"))
		}
	default:
		// OpenAI and Anthropic share {"data":[{"id":...}]}.
		var body struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := decodeBody(profile.ID(), raw, &body); err != nil {
			return nil, err
		}
		for _, m := range body.Data {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
