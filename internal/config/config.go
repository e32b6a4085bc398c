package config

import "fmt"

// Config represents the top-level configuration structure for xcbridge.
type Config struct {
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Security   Security   `yaml:"security"`
	Xcodebuild Xcodebuild `yaml:"xcodebuild"`
	Store      Store      `yaml:"store"`
	Retention  Retention  `yaml:"retention"`
}

// Server holds HTTP listener settings.
type Server struct {
	Host   string `yaml:"host"` // bind address, default 127.0.0.1
	Port   int    `yaml:"port"` // default 9090
	APIKey string `yaml:"api_key"` // optional; empty disables authentication
}

// Logging configuration for the structured logger.
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stderr, stdout, or file path
}

// Security restricts which filesystem paths build jobs may reference.
type Security struct {
	AllowedPaths []string `yaml:"allowed_paths"` // optional; empty permits all paths
}

// Xcodebuild holds settings for invoking the external build tool.
type Xcodebuild struct {
	Tool                 string `yaml:"tool"`                  // executable name, default "xcodebuild"
	DefaultConfiguration string `yaml:"default_configuration"` // default "Debug"
}

// Store configuration for terminal job history persistence.
type Store struct {
	Driver string `yaml:"driver"` // "bbolt" or "json"
	Path   string `yaml:"path"`   // file path for the store
}

// Retention controls the periodic reclamation of finished job records.
type Retention struct {
	MaxCompleted  int    `yaml:"max_completed"`  // terminal records kept in memory, default 50
	SweepSchedule string `yaml:"sweep_schedule"` // cron expression, default "@every 1m"
}

// Addr returns the host:port address the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
