package tool

// ExecToolConfig configures terminal command execution.
type ExecToolConfig struct {
	Timeout int `json:"timeout"` // seconds per dispatch
}

func DefaultExecToolConfig() ExecToolConfig {
	return ExecToolConfig{Timeout: 300}
}
