// Package config defines the configuration schema for tidewire.
//
// JSON keys use camelCase. Sections live in sub-packages; Config composes
// them and DefaultConfig fills every field a partial file leaves out.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/config/agent"
	"github.com/crystaldolphin/tidewire/internal/config/provider"
	"github.com/crystaldolphin/tidewire/internal/config/server"
	"github.com/crystaldolphin/tidewire/internal/config/terminal"
	"github.com/crystaldolphin/tidewire/internal/config/tool"
)

// KeystoreConfig locates the credential database.
type KeystoreConfig struct {
	Path string `json:"path"`
}

// Config is the root configuration.
type Config struct {
	Agents    agent.AgentsConfig       `json:"agents"`
	Providers provider.ProvidersConfig `json:"providers"`
	Tools     tool.ToolsConfig         `json:"tools"`
	Terminal  terminal.TerminalConfig  `json:"terminal"`
	Server    server.ServerConfig      `json:"server"`
	Keystore  KeystoreConfig           `json:"keystore"`
}

func DefaultConfig() Config {
	return Config{
		Agents:    agent.DefaultAgentsConfig(),
		Providers: provider.DefaultProvidersConfig(),
		Tools:     tool.DefaultToolConfigs(),
		Terminal:  terminal.DefaultTerminalConfig(),
		Server:    server.DefaultServerConfig(),
		Keystore:  KeystoreConfig{Path: "~/.tidewire/keys.db"},
	}
}

// WorkspacePath returns the expanded workspace directory.
func (c *Config) WorkspacePath() string {
	return ExpandHome(c.Agents.Defaults.Workspace)
}

// KeystorePath returns the expanded credential database path.
func (c *Config) KeystorePath() string {
	if c.Keystore.Path == "" {
		return filepath.Join(DataDir(), "keys.db")
	}
	return ExpandHome(c.Keystore.Path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
