package httpapi

import (
	"os"
	"time"
)

// Config holds the local HTTP surface configuration (spec.md §6).
type Config struct {
	Bind            string        `yaml:"bind"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// defaults fills zero values with sensible defaults, mirroring the
// teacher gateway's Config.defaults. Bind falls back to PORT (spec.md §6)
// before the hardcoded node default, so a deployment can move the node's
// own front door without touching YAML.
func (c *Config) defaults() {
	if c.Bind == "" {
		if port, ok := os.LookupEnv("PORT"); ok && port != "" {
			c.Bind = "127.0.0.1:" + port
		}
	}
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8716"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		// Streaming chat/completion responses can run long; the teacher's
		// 30s gateway default would truncate a slow generation mid-stream.
		c.WriteTimeout = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}
