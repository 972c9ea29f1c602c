// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for meshnoded.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "supervisor.native",
	// "backend.openai_compat", "httpapi").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Security holds optional security settings (rate limits, URL filter)
	// applied by the modules that enforce them.
	Security *SecurityConfig `yaml:"security,omitempty"`
}

// SecurityConfig holds security-related settings shared across modules.
type SecurityConfig struct {
	RateLimits RateLimitConfig `yaml:"rate_limits,omitempty"`
	URLFilter  URLFilterConfig `yaml:"url_filter,omitempty"`
}

// RateLimitConfig mirrors internal/security.RateLimitConfig's shape so a
// node operator can set limits from the same YAML document that configures
// every other module, without this package importing internal/security.
type RateLimitConfig struct {
	MaxPeers         int `yaml:"max_peers"`
	TasksPerMin      int `yaml:"tasks_per_min"`
	TunnelMsgsPerMin int `yaml:"tunnel_msgs_per_min"`
	TokensPerHour    int `yaml:"tokens_per_hour"`
}

// URLFilterConfig holds URL filtering settings (e.g. restricting where a
// backend adapter's health probe or a tunnel relay hint may point).
type URLFilterConfig struct {
	AllowDomains []string `yaml:"allow_domains,omitempty"`
	DenyDomains  []string `yaml:"deny_domains,omitempty"`
}
