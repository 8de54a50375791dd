package controller

import (
	"log/slog"
	"os"
	"regexp"
	"strconv"
)

// Defaults used whenever the core configuration does not carry usable
// controller directives. The core binds its REST controller to loopback
// port 9090 unless told otherwise.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 9090
)

// The core config is YAML-ish but we deliberately do not parse the full
// schema; only these two directives matter for reaching the controller.
// Quoting and surrounding whitespace are accepted.
var (
	controllerRe = regexp.MustCompile(`external-controller:\s*['"]?([^'":\s]+):?(\d+)?['"]?`)
	secretRe     = regexp.MustCompile(`secret:\s*['"]?([^'"\s]+)['"]?`)
)

// DefaultConfig returns the controller config assumed when extraction
// finds nothing usable.
func DefaultConfig() Config {
	return Config{Host: DefaultHost, Port: DefaultPort}
}

// ParseControllerConfig extracts the controller address and secret from the
// raw text of a core configuration document. Extraction never fails: missing
// or malformed directives fall back to defaults so a bad config cannot block
// process startup.
func ParseControllerConfig(raw string, logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()

	if m := controllerRe.FindStringSubmatch(raw); m != nil {
		if m[1] != "" {
			cfg.Host = m[1]
		}
		if m[2] != "" {
			if p, err := strconv.Atoi(m[2]); err == nil {
				cfg.Port = p
			} else {
				logger.Warn("ignoring non-numeric controller port", "port", m[2])
			}
		}
	} else {
		logger.Debug("no external-controller directive, using defaults",
			"host", cfg.Host, "port", cfg.Port)
	}

	if m := secretRe.FindStringSubmatch(raw); m != nil {
		cfg.Secret = m[1]
	}
	return cfg
}

// ExtractFromFile reads path and extracts the controller config from its
// contents. An unreadable file yields the defaults.
func ExtractFromFile(path string, logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	b, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's own config
	if err != nil {
		logger.Warn("cannot read core config, using default controller settings",
			"path", path, "error", err)
		return DefaultConfig()
	}
	return ParseControllerConfig(string(b), logger)
}
