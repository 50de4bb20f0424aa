// Package config provides the YAML schemas for workflow libraries and the
// host configuration for the planwalk binary.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a library document or the host config omit values.
const (
	// DefaultStalenessTurns applies to authored graphs.
	DefaultStalenessTurns = 15
	// DefaultLinearStalenessTurns applies to graphs adapted from linear plans.
	DefaultLinearStalenessTurns = 10
	// DefaultTriggerThreshold is the minimum trigger-keyword hit count for
	// library matching.
	DefaultTriggerThreshold = 2
	// DefaultMaxRouteDepth bounds automatic routing through decision chains.
	DefaultMaxRouteDepth = 15
)

// Config holds the host configuration for the planwalk binary.
type Config struct {
	Library   LibraryConfig   `yaml:"library"`
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LibraryConfig locates the workflow library on disk.
type LibraryConfig struct {
	File  string `yaml:"file"`
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// EngineConfig holds traversal engine tunables.
type EngineConfig struct {
	MaxRouteDepth int `yaml:"max_route_depth"`
	// FailureMarkers configures the exit_code_zero verification. Outputs
	// containing any marker (case-insensitive) fail the check.
	FailureMarkers []string `yaml:"failure_markers"`
}

// LoggingConfig holds configuration for structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds configuration for OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// Load reads configuration from a file and applies environment variable
// overrides. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			MaxRouteDepth: DefaultMaxRouteDepth,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PLANWALK_LIBRARY_FILE"); val != "" {
		cfg.Library.File = val
	}
	if val := os.Getenv("PLANWALK_LIBRARY_DIR"); val != "" {
		cfg.Library.Dir = val
	}
	if val := os.Getenv("PLANWALK_LIBRARY_WATCH"); val == "true" {
		cfg.Library.Watch = true
	}
	if val := os.Getenv("PLANWALK_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("PLANWALK_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("PLANWALK_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("PLANWALK_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("PLANWALK_METRICS_ADDR"); val != "" {
		cfg.Telemetry.MetricsAddr = val
	}
	if val := os.Getenv("PLANWALK_MAX_ROUTE_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil && depth > 0 {
			cfg.Engine.MaxRouteDepth = depth
		}
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.Library.File != "" && c.Library.Dir != "" {
		return fmt.Errorf("library.file and library.dir are mutually exclusive")
	}
	if c.Engine.MaxRouteDepth <= 0 {
		return fmt.Errorf("engine.max_route_depth must be positive, got %d", c.Engine.MaxRouteDepth)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", c.Logging.Format)
	}
	return nil
}

// ParseLibrary parses a library document from raw YAML bytes.
func ParseLibrary(data []byte) (*LibrarySpec, error) {
	var spec LibrarySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse library document: %w", err)
	}
	return &spec, nil
}

// ReadLibraryFile reads and parses one library file.
func ReadLibraryFile(path string) (*LibrarySpec, error) {
	//nolint:gosec // Library file paths come from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library file %s: %w", path, err)
	}
	spec, err := ParseLibrary(data)
	if err != nil {
		return nil, fmt.Errorf("library file %s: %w", path, err)
	}
	return spec, nil
}
