package server

// ServerConfig holds the event stream and metrics listener settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// EventBuffer is the dispatch event queue length.
	EventBuffer int `json:"eventBuffer"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{Host: "127.0.0.1", Port: 18790, EventBuffer: 256}
}
