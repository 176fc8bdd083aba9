package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir is the per-project directory holding config and logs.
const Dir = ".constraints"

// FileName is the config file inside Dir.
const FileName = "config.yaml"

// Config holds all constraintkit configuration.
type Config struct {
	// Constraints engine
	Constraints ConstraintsConfig `yaml:"constraints"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ConstraintsConfig configures rule loading and evaluation.
type ConstraintsConfig struct {
	RulesPath    string `yaml:"rules_path"`    // relative to the project root
	FactLimit    int    `yaml:"fact_limit"`    // max derived facts per query, 0 = unlimited
	QueryTimeout string `yaml:"query_timeout"` // bounds waiting for one answer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Constraints: ConstraintsConfig{
			RulesPath:    "constraints.mg",
			FactLimit:    500000,
			QueryTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

// DefaultPath returns the config path for a project root.
func DefaultPath(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CONSTRAINTS_RULES_PATH"); path != "" {
		c.Constraints.RulesPath = path
	}
	if limit := os.Getenv("CONSTRAINTS_FACT_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n >= 0 {
			c.Constraints.FactLimit = n
		}
	}
	if timeout := os.Getenv("CONSTRAINTS_QUERY_TIMEOUT"); timeout != "" {
		c.Constraints.QueryTimeout = timeout
	}
	if debug := os.Getenv("CONSTRAINTS_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// GetQueryTimeout returns the query timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Constraints.QueryTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RulesFile resolves the rules path against the project root.
func (c *Config) RulesFile(root string) string {
	if filepath.IsAbs(c.Constraints.RulesPath) {
		return c.Constraints.RulesPath
	}
	return filepath.Join(root, c.Constraints.RulesPath)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Constraints.RulesPath == "" {
		return fmt.Errorf("constraints.rules_path must not be empty")
	}
	if c.Constraints.FactLimit < 0 {
		return fmt.Errorf("constraints.fact_limit must not be negative: %d", c.Constraints.FactLimit)
	}
	if _, err := time.ParseDuration(c.Constraints.QueryTimeout); err != nil {
		return fmt.Errorf("invalid constraints.query_timeout %q: %w", c.Constraints.QueryTimeout, err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	return nil
}

// FindProjectRoot walks up from start to the first directory holding a
// .constraints directory or a package.json. Falls back to start.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if info, err := os.Stat(filepath.Join(dir, Dir)); err == nil && info.IsDir() {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}
