package config

import (
	"errors"
	"fmt"

	"github.com/meshnode/meshnode/internal/core"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, and checks
// that all referenced module IDs exist in the registry. It also validates
// security settings.
// Configurable modules not listed in config are simply not loaded — no error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	// NOTE: Configurable modules NOT listed in cfg.Modules are simply not
	// loaded — that is not an error. We only validate what the operator
	// chose to include.

	errs = append(errs, validateSecurity(cfg.Security)...)

	return errors.Join(errs...)
}

func validateSecurity(sec *SecurityConfig) []error {
	if sec == nil {
		return nil
	}
	var errs []error

	for i, domain := range sec.URLFilter.AllowDomains {
		if domain == "" {
			errs = append(errs, fmt.Errorf("config: security.url_filter.allow_domains[%d]: empty domain", i))
		}
	}
	for i, domain := range sec.URLFilter.DenyDomains {
		if domain == "" {
			errs = append(errs, fmt.Errorf("config: security.url_filter.deny_domains[%d]: empty domain", i))
		}
	}

	if sec.RateLimits.MaxPeers < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.max_peers must not be negative"))
	}
	if sec.RateLimits.TasksPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.tasks_per_min must not be negative"))
	}
	if sec.RateLimits.TunnelMsgsPerMin < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.tunnel_msgs_per_min must not be negative"))
	}
	if sec.RateLimits.TokensPerHour < 0 {
		errs = append(errs, errors.New("config: security.rate_limits.tokens_per_hour must not be negative"))
	}

	return errs
}
