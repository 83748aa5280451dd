package tool

// ToolsConfig groups all tool-level settings.
type ToolsConfig struct {
	Web                 WebToolsConfig `json:"web"`
	Exec                ExecToolConfig `json:"exec"`
	RestrictToWorkspace bool           `json:"restrictToWorkspace"`
	// AllowTools limits the tools offered to the model. Empty allows all.
	AllowTools []string `json:"allowTools,omitempty"`
	// Parallelism bounds concurrent tool calls within one turn.
	Parallelism int `json:"parallelism"`
}

func DefaultToolConfigs() ToolsConfig {
	return ToolsConfig{
		Web:         DefaultWebToolsConfig(),
		Exec:        DefaultExecToolConfig(),
		Parallelism: 8,
	}
}
