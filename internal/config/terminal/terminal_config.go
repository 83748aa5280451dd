package terminal

// TerminalConfig configures command sessions.
type TerminalConfig struct {
	Shell string `json:"shell"`
	// IdleTimeout closes sessions idle for longer, in seconds. 0 disables.
	IdleTimeout int `json:"idleTimeout"`
	// ReapInterval is how often idle sessions are checked, in seconds.
	ReapInterval int `json:"reapInterval"`
	// AllowUserSessions lets the agent operate on sessions the user opened.
	AllowUserSessions bool `json:"allowUserSessions"`
}

func DefaultTerminalConfig() TerminalConfig {
	return TerminalConfig{Shell: "sh", IdleTimeout: 1800, ReapInterval: 60}
}
