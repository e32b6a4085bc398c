package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads and validates an xcbridge configuration from a YAML file.
// A missing file is not an error: the service runs with built-in defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.APIKey == "" {
		cfg.Server.APIKey = os.Getenv("XCBRIDGE_API_KEY")
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Xcodebuild.Tool == "" {
		cfg.Xcodebuild.Tool = "xcodebuild"
	}
	if cfg.Xcodebuild.DefaultConfiguration == "" {
		cfg.Xcodebuild.DefaultConfiguration = "Debug"
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "bbolt"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./.xcbridge.db"
	}

	if cfg.Retention.MaxCompleted == 0 {
		cfg.Retention.MaxCompleted = 50
	}
	if cfg.Retention.SweepSchedule == "" {
		cfg.Retention.SweepSchedule = "@every 1m"
	}
}

// validate checks the configuration for errors and inconsistencies.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validDrivers := map[string]bool{
		"bbolt": true,
		"json":  true,
	}
	if !validDrivers[cfg.Store.Driver] {
		return fmt.Errorf("invalid store driver: %s (must be 'bbolt' or 'json')", cfg.Store.Driver)
	}

	if cfg.Retention.MaxCompleted < 0 {
		return fmt.Errorf("retention.max_completed must be non-negative")
	}

	for _, p := range cfg.Security.AllowedPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("security.allowed_paths contains an empty entry")
		}
	}

	return nil
}

// IsPathAllowed reports whether a filesystem path may be used in a job
// specification. Both the candidate and each allowed root are canonicalized
// before comparison, so a path that only textually matches a root is rejected.
// With no allowed paths configured, every path is permitted.
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.Security.AllowedPaths) == 0 {
		return true
	}

	canonical, err := canonicalize(path)
	if err != nil {
		return false
	}

	for _, root := range c.Security.AllowedPaths {
		allowed, err := canonicalize(root)
		if err != nil {
			continue
		}
		if isDescendant(canonical, allowed) {
			return true
		}
	}
	return false
}

// canonicalize resolves a path to its absolute, symlink-free form. The final
// component may not exist yet (a project about to be created), so symlinks are
// resolved on the deepest existing ancestor.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Split(abs)
	resolvedDir, err := filepath.EvalSymlinks(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// isDescendant reports whether path is root itself or lies underneath it.
func isDescendant(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
