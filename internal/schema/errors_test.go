package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderTransportError_Retryable(t *testing.T) {
	cases := map[int]bool{0: true, 400: false, 401: false, 408: true, 429: true, 500: true, 503: true}
	for status, want := range cases {
		err := &ProviderTransportError{Provider: "openai", StatusCode: status, Err: errors.New("x")}
		assert.Equal(t, want, err.Retryable(), "status %d", status)
	}
}

func TestProviderErrors_As(t *testing.T) {
	wrapped := fmt.Errorf("turn aborted: %w", &ProviderProtocolError{Provider: "gemini", Reason: "no candidates"})

	var perr *ProviderProtocolError
	assert.True(t, errors.As(wrapped, &perr))
	assert.Equal(t, "gemini: no candidates", perr.Error())
}
