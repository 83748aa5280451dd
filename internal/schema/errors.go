package schema

import (
	"fmt"
	"net/http"
)

// ProviderTransportError is a network or HTTP-status failure from an adapter.
// StatusCode is 0 when the request never produced a response.
type ProviderTransportError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderTransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ProviderTransportError) Unwrap() error { return e.Err }

// Retryable classifies the failure for the orchestration loop. Adapters
// themselves never retry.
func (e *ProviderTransportError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// ProviderProtocolError means a 2xx response could not be mapped onto the
// canonical model.
type ProviderProtocolError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderProtocolError) Unwrap() error { return e.Err }
