package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfile_AuthDefaults(t *testing.T) {
	cases := []struct {
		wire      WireFormat
		placement AuthPlacement
		header    string
	}{
		{WireOpenAI, AuthBearer, "Authorization"},
		{WireAnthropic, AuthHeader, "x-api-key"},
		{WireGoogle, AuthQuery, "key"},
	}
	for _, tc := range cases {
		p, err := NewProfile(ProfileSpec{ID: "p", Wire: tc.wire, BaseEndpoint: "https://example.test/v1/"})
		require.NoError(t, err)
		assert.Equal(t, tc.placement, p.AuthPlacement(), tc.wire)
		assert.Equal(t, tc.header, p.AuthHeader(), tc.wire)
		assert.Equal(t, "https://example.test/v1", p.BaseEndpoint())
	}
}

func TestNewProfile_Invalid(t *testing.T) {
	_, err := NewProfile(ProfileSpec{Wire: WireOpenAI, BaseEndpoint: "x"})
	assert.Error(t, err)
	_, err = NewProfile(ProfileSpec{ID: "a", Wire: "soap", BaseEndpoint: "x"})
	assert.Error(t, err)
	_, err = NewProfile(ProfileSpec{ID: "a", Wire: WireOpenAI})
	assert.Error(t, err)
	_, err = NewProfile(ProfileSpec{ID: "a", Wire: WireOpenAI, BaseEndpoint: "x", AuthPlacement: AuthHeader})
	assert.Error(t, err)
}

func TestProfile_OverridesDoNotMutateRegistered(t *testing.T) {
	c := NewCatalog()
	registered, ok := c.Lookup("openai")
	require.True(t, ok)

	effective := registered.WithBaseEndpoint("http://127.0.0.1:9999/v1").
		WithExtraHeaders(map[string]string{"X-Trace": "1"})
	assert.Equal(t, "http://127.0.0.1:9999/v1", effective.BaseEndpoint())
	assert.Equal(t, "1", effective.ExtraHeaders()["X-Trace"])

	again, _ := c.Lookup("openai")
	assert.Equal(t, "https://api.openai.com/v1", again.BaseEndpoint())
	assert.Empty(t, again.ExtraHeaders())

	// Mutating the returned header map changes nothing.
	h := effective.ExtraHeaders()
	h["X-Trace"] = "2"
	assert.Equal(t, "1", effective.ExtraHeaders()["X-Trace"])
}

func TestCatalog_FindByModel(t *testing.T) {
	c := NewCatalog()

	p, ok := c.FindByModel("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, "anthropic", p.ID())

	p, ok = c.FindByModel("deepseek/deepseek-chat")
	require.True(t, ok)
	assert.Equal(t, "deepseek", p.ID())

	p, ok = c.FindByModel("gemini-2.5-pro")
	require.True(t, ok)
	assert.Equal(t, WireGoogle, p.Wire())

	_, ok = c.FindByModel("totally-unknown")
	assert.False(t, ok)
}

func TestCatalog_AddReplacesInPlace(t *testing.T) {
	c := NewCatalog()
	before := len(c.All())

	require.NoError(t, c.AddSpecs([]ProfileSpec{
		{ID: "openai", Wire: WireOpenAI, BaseEndpoint: "http://proxy.local/v1"},
		{ID: "local-llama", Wire: WireOpenAI, BaseEndpoint: "http://localhost:11434/v1", Keywords: []string{"llama"}},
	}))

	assert.Len(t, c.All(), before+1)
	p, err := c.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local/v1", p.BaseEndpoint())

	_, err = c.Get("nope")
	assert.Error(t, err)
}
