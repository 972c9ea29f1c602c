package native

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the YAML-configurable shape for the native adapter module.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// defaults fills zero values, consulting spec.md §6's environment
// variables before falling back to the hardcoded Ollama defaults:
// OLLAMA_API_URL, MODEL_REQUEST_TIMEOUT (ms), MODEL_REQUEST_RETRIES. YAML
// values always win over the environment.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		if v, ok := os.LookupEnv("OLLAMA_API_URL"); ok && v != "" {
			c.BaseURL = v
		}
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:11434"
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.Timeout == 0 {
		if v, ok := os.LookupEnv("MODEL_REQUEST_TIMEOUT"); ok && v != "" {
			if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
				c.Timeout = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.MaxRetries == 0 {
		if v, ok := os.LookupEnv("MODEL_REQUEST_RETRIES"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.MaxRetries = n
			}
		}
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("backend.native: base_url is required")
	}
	return nil
}
