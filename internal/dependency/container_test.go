package dependency

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/config"
	"github.com/crystaldolphin/tidewire/internal/config/provider"
	"github.com/crystaldolphin/tidewire/internal/dispatch"
	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

type noopDesktop struct{}

func (noopDesktop) Open(context.Context, string) error           { return nil }
func (noopDesktop) Notify(context.Context, string, string) error { return nil }

func newTestContainer(t *testing.T, mutate func(*config.Config)) *Container {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Agents.Defaults.Workspace = filepath.Join(dir, "workspace")
	cfg.Keystore.Path = filepath.Join(dir, "keys.db")
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(&cfg, Options{Version: "test", DataDir: dir, Desktop: noopDesktop{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew_DispatchTableOrder(t *testing.T) {
	c := newTestContainer(t, nil)
	names := c.Dispatcher().FamilyNames()
	assert.Equal(t, append(append([]string{}, dispatch.FamilyOrder...), "core"), names)

	reg := c.Dispatcher().Schemas()
	for _, name := range []string{"create_terminal", "read_file", "edit_file", "web_search", "invoke_agent",
		"search_messages", "search_memory", "run_workflow", "create_backup", "get_system_info", "open_url"} {
		assert.True(t, reg.Has(name), name)
	}
}

func TestNew_SystemToolReportsVersion(t *testing.T) {
	c := newTestContainer(t, nil)
	res := c.Dispatcher().Execute(context.Background(), schema.ToolCall{ID: "1", Name: "get_system_info"}, dispatch.Options{})
	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Output, "test")
}

func TestInvokeAgentUnavailableWithoutProvider(t *testing.T) {
	c := newTestContainer(t, nil)

	_, err := c.AgentLoop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")

	res := c.Dispatcher().Execute(context.Background(), schema.ToolCall{
		ID: "1", Name: tools.ToolInvokeAgent, Arguments: map[string]any{"task": "x"},
	}, dispatch.Options{})
	assert.False(t, res.Success)
	assert.Equal(t, string(tools.KindUnavailable), res.ErrorKind())
}

func TestAgentLoopResolvesConfiguredProvider(t *testing.T) {
	c := newTestContainer(t, func(cfg *config.Config) {
		cfg.Providers = provider.ProvidersConfig{"anthropic": {APIKey: "sk-test"}}
	})
	loop, err := c.AgentLoop()
	require.NoError(t, err)
	require.NotNil(t, loop)

	again, err := c.AgentLoop()
	require.NoError(t, err)
	assert.Same(t, loop, again)
}

func TestStoredKeyIsUsed(t *testing.T) {
	c := newTestContainer(t, nil)
	require.NoError(t, c.Keys().SaveKey(context.Background(), "anthropic", "sk-stored", true))
	_, err := c.AgentLoop()
	assert.NoError(t, err)
}
