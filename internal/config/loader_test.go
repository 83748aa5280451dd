package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/config/provider"
	"github.com/crystaldolphin/tidewire/internal/providers"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// ─── Load / Save ───

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Agents.Defaults.Model, cfg.Agents.Defaults.Model)
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{"model": "gpt-4o", "maxTokens": 4096},
		},
		"providers": map[string]any{
			"openai": map[string]any{"apiKey": "sk-test"},
		},
		"terminal": map[string]any{"idleTimeout": 10},
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Agents.Defaults.Model)
	assert.Equal(t, 4096, cfg.Agents.Defaults.MaxTokens)
	assert.Equal(t, "sk-test", cfg.Providers["openai"].APIKey)
	assert.Equal(t, 10, cfg.Terminal.IdleTimeout)
	assert.Equal(t, DefaultConfig().Terminal.ReapInterval, cfg.Terminal.ReapInterval)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Agents.Defaults.Model, cfg.Agents.Defaults.Model)
}

func TestLoad_PartialConfig_UsesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), map[string]any{
		"agents": map[string]any{"defaults": map[string]any{"model": "custom/model"}},
	})
	cfg, err := Load(path)
	require.NoError(t, err)
	def := DefaultConfig()
	assert.Equal(t, "custom/model", cfg.Agents.Defaults.Model)
	assert.Equal(t, def.Agents.Defaults.Temperature, cfg.Agents.Defaults.Temperature)
	assert.Equal(t, def.Agents.Defaults.HistoryWindow, cfg.Agents.Defaults.HistoryWindow)
	assert.Equal(t, def.Tools.Parallelism, cfg.Tools.Parallelism)
	assert.NotNil(t, cfg.Providers)
}

func TestSave_RoundTripAndPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	original := DefaultConfig()
	original.Agents.Defaults.Model = "claude-opus-4"
	original.Providers["anthropic"] = provider.ProviderConfig{APIKey: "k"}
	require.NoError(t, Save(&original, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4", loaded.Agents.Defaults.Model)
	assert.Equal(t, "k", loaded.Providers["anthropic"].APIKey)
}

// ─── Profiles ───

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`profiles:
  - id: local
    displayName: Local
    wire: openai
    baseEndpoint: http://localhost:11434/v1
    defaultModel: llama3
    keywords: [llama]
`), 0o600))

	specs, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, providers.WireOpenAI, specs[0].Wire)

	catalog, err := BuildCatalog(path)
	require.NoError(t, err)
	p, ok := catalog.FindByModel("llama3:8b")
	require.True(t, ok)
	assert.Equal(t, "local", p.ID())

	missing, err := LoadProfiles(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoadProfiles_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - id: x\n    wire: soap\n    baseEndpoint: http://x\n"), 0o600))
	_, err := LoadProfiles(path)
	assert.Error(t, err)
}

// ─── Resolve ───

func TestResolve(t *testing.T) {
	catalog := providers.NewCatalog()
	cfg := DefaultConfig()
	cfg.Providers["anthropic"] = provider.ProviderConfig{APIKey: "ak", APIBase: "http://proxy.test/v1"}

	r, err := cfg.Resolve("anthropic/claude-sonnet-4-5", catalog, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", r.Profile.ID())
	assert.Equal(t, "claude-sonnet-4-5", r.Model)
	assert.Equal(t, "ak", r.APIKey)
	assert.Equal(t, "http://proxy.test/v1", r.Profile.BaseEndpoint())

	// No keyword match falls back to the first configured provider.
	r, err = cfg.Resolve("mystery-model", catalog, nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", r.Profile.ID())
	assert.Equal(t, "mystery-model", r.Model)

	// Keys missing from the file come from the loader.
	r, err = cfg.Resolve("gpt-4o", catalog, func(id string) (string, error) {
		if id == "openai" {
			return "from-store", nil
		}
		return "", errors.New("none")
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", r.Profile.ID())
	assert.Equal(t, "from-store", r.APIKey)

	cfg.Agents.Defaults.Provider = "gemini"
	r, err = cfg.Resolve("", catalog, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", r.Profile.ID())

	cfg.Agents.Defaults.Provider = "unknown"
	_, err = cfg.Resolve("", catalog, nil)
	assert.Error(t, err)
}

func TestResolve_NoProvider(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.Resolve("mystery-model", providers.NewCatalog(), nil)
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "ws"), ExpandHome("~/ws"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
}
