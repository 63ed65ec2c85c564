package config

import "time"

// APIConfig contains HTTP server settings.
type APIConfig struct {
	// ListenAddr is the bind address for the API server
	ListenAddr string `yaml:"listen_addr"`

	// ReadHeaderTimeout bounds request header reads
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout bounds graceful server shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultAPIConfig returns the built-in API server defaults.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		ListenAddr:        ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}
