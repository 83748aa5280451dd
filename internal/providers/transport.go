package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 2000

type transport struct {
	client *http.Client
}

// do sends one request authenticated per the profile and returns the body of
// a 2xx response.
func (t transport) do(
	ctx context.Context,
	method string,
	profile ProviderProfile,
	apiKey, endpoint string,
	payload any,
	headers map[string]string,
) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", profile.ID(), err)
		}
		body = bytes.NewReader(data)
	}

	if profile.AuthPlacement() == AuthQuery && apiKey != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse %s endpoint: %w", profile.ID(), err)
		}
		q := u.Query()
		q.Set(profile.AuthHeader(), apiKey)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", profile.ID(), err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch profile.AuthPlacement() {
	case AuthBearer:
		if apiKey != "" {
			req.Header.Set(profile.AuthHeader(), "Bearer "+apiKey)
		}
	case AuthHeader:
		req.Header.Set(profile.AuthHeader(), apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range profile.extraHeaders {
		req.Header.Set(k, v)
	}

	client := t.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &schema.ProviderTransportError{Provider: profile.ID(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &schema.ProviderTransportError{Provider: profile.ID(), StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("Provider request failed", "provider", profile.ID(), "status", resp.StatusCode)
		return nil, &schema.ProviderTransportError{
			Provider:   profile.ID(),
			StatusCode: resp.StatusCode,
			Body:       truncateBody(raw),
		}
	}
	return raw, nil
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

// decodeBody unmarshals a 2xx body, mapping failure to a protocol error.
func decodeBody(provider string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &schema.ProviderProtocolError{Provider: provider, Reason: "undecodable response body", Err: err}
	}
	return nil
}
