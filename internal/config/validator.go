package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ValidateCredentialSecurity checks for insecure operating practices
// that would leak sensitive data into logs or config files on disk,
// returning a human-readable warning per practice found. Callers are
// expected to log each warning themselves.
func ValidateCredentialSecurity(cfg *Config) []string {
	var warnings []string

	if cfg.Agent.LogLevel == "debug" || cfg.Agent.LogLevel == "trace" {
		warnings = append(warnings, "running in "+cfg.Agent.LogLevel+" mode - verbose logging is enabled")
	}

	return warnings
}

// SanitizeConfigForLogging returns a version of cfg safe to log in full.
func SanitizeConfigForLogging(cfg *Config) map[string]interface{} {
	sanitized := make(map[string]interface{})

	sanitized["agent"] = map[string]interface{}{
		"log_level":     cfg.Agent.LogLevel,
		"allow_disable": cfg.Agent.AllowDisable,
	}

	sanitized["dns"] = map[string]interface{}{
		"upstreams":          cfg.DNS.Upstreams,
		"forward_timeout":    cfg.DNS.ForwardTimeout,
		"cache_size":         cfg.DNS.CacheSize,
		"rate_limit_queries": cfg.DNS.RateLimitQueries,
		"rate_limit_window":  cfg.DNS.RateLimitWindow,
	}

	sanitized["blocklist"] = map[string]interface{}{
		"path":            cfg.Blocklist.Path,
		"reload_interval": cfg.Blocklist.ReloadInterval,
	}

	sanitized["control"] = map[string]interface{}{
		"port": cfg.Control.Port,
	}

	logging := map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}
	if cfg.Logging.RemoteSinkAddr != "" {
		logging["remote_sink"] = "[CONFIGURED]"
	}
	sanitized["logging"] = logging

	return sanitized
}

// ValidateConfig performs basic configuration validation. It reports
// the first problem found and does not fill in defaults; those are
// applied by LoadConfig.
func ValidateConfig(cfg *Config) error {
	if len(cfg.DNS.Upstreams) == 0 {
		return fmt.Errorf("no DNS upstreams configured")
	}
	for _, upstream := range cfg.DNS.Upstreams {
		if upstream == "" {
			return fmt.Errorf("empty DNS upstream configured")
		}
	}

	if cfg.DNS.RateLimitQueries < 0 {
		return fmt.Errorf("invalid rate limit queries: %d", cfg.DNS.RateLimitQueries)
	}

	if cfg.Blocklist.Path == "" {
		return fmt.Errorf("blocklist path not configured")
	}

	if cfg.Control.Port <= 0 || cfg.Control.Port > 65535 {
		return fmt.Errorf("invalid control port: %d", cfg.Control.Port)
	}

	return nil
}

// warnIfWorldReadable flags a config file that a local unprivileged
// user could read, since it may carry a remote log sink address.
func warnIfWorldReadable(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0044 != 0 {
		logrus.WithField("path", path).Warn("config file is group- or world-readable")
	}
}
