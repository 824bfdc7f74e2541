package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Preview PreviewConfig `yaml:"preview"`
	Patch   PatchConfig   `yaml:"patch"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	OpsPort      int           `yaml:"ops_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PreviewConfig represents preview orchestration settings
type PreviewConfig struct {
	PortRangeStart  int           `yaml:"port_range_start"`
	PortRangeEnd    int           `yaml:"port_range_end"`
	ExcludedPorts   []int         `yaml:"excluded_ports"`
	LogBufferSize   int           `yaml:"log_buffer_size"`
	TerminationWait time.Duration `yaml:"termination_wait"`
	PythonBin       string        `yaml:"python_bin"`
	NodeBin         string        `yaml:"node_bin"`
	NpmBin          string        `yaml:"npm_bin"`
	// Preparation installs project dependencies (venv + pip, npm
	// install) before launch; disable when environments are provisioned
	// out of band.
	PrepareDisabled bool          `yaml:"prepare_disabled"`
	PrepareTimeout  time.Duration `yaml:"prepare_timeout"`
	// Grace periods are empirically chosen startup waits per project
	// type; slow-starting projects may still be reported as failed.
	GraceStatic    time.Duration `yaml:"grace_static"`
	GraceFlask     time.Duration `yaml:"grace_flask"`
	GraceStreamlit time.Duration `yaml:"grace_streamlit"`
	GraceNode      time.Duration `yaml:"grace_node"`
	GraceSPA       time.Duration `yaml:"grace_spa"`
	GracePHP       time.Duration `yaml:"grace_php"`
}

// PatchConfig configures the external patch-suggestion collaborator
type PatchConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HistoryConfig configures the session event store
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a configuration with default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8501,
			OpsPort:      9090,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Preview: PreviewConfig{
			PortRangeStart:  8000,
			PortRangeEnd:    8999,
			ExcludedPorts:   []int{8501},
			LogBufferSize:   2000,
			TerminationWait: 5 * time.Second,
			PythonBin:       "python3",
			NodeBin:         "node",
			NpmBin:          "npm",
			PrepareDisabled: false,
			PrepareTimeout:  5 * time.Minute,
			GraceStatic:     2 * time.Second,
			GraceFlask:      5 * time.Second,
			GraceStreamlit:  5 * time.Second,
			GraceNode:       3 * time.Second,
			GraceSPA:        10 * time.Second,
			GracePHP:        3 * time.Second,
		},
		Patch: PatchConfig{
			Endpoint: "",
			Timeout:  60 * time.Second,
		},
		History: HistoryConfig{
			Enabled: false,
			DSN:     "forge_preview.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// getConfigPath returns the configuration file path
func getConfigPath() string {
	// Check environment variable first
	if path := os.Getenv("FORGE_CONFIG"); path != "" {
		return path
	}

	// Look for config.yaml in current directory
	return "config.yaml"
}

// applyEnv overrides configuration with environment variables
func (c *Config) applyEnv() {
	if host := os.Getenv("FORGE_SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("FORGE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if port := os.Getenv("FORGE_OPS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.OpsPort = p
		}
	}
	if start := os.Getenv("FORGE_PREVIEW_PORT_START"); start != "" {
		if p, err := strconv.Atoi(start); err == nil {
			c.Preview.PortRangeStart = p
		}
	}
	if end := os.Getenv("FORGE_PREVIEW_PORT_END"); end != "" {
		if p, err := strconv.Atoi(end); err == nil {
			c.Preview.PortRangeEnd = p
		}
	}
	if excluded := os.Getenv("FORGE_PREVIEW_EXCLUDED_PORTS"); excluded != "" {
		ports := []int{}
		for _, part := range strings.Split(excluded, ",") {
			if p, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				ports = append(ports, p)
			}
		}
		if len(ports) > 0 {
			c.Preview.ExcludedPorts = ports
		}
	}
	if disabled := os.Getenv("FORGE_PREVIEW_PREPARE_DISABLED"); disabled != "" {
		if b, err := strconv.ParseBool(disabled); err == nil {
			c.Preview.PrepareDisabled = b
		}
	}
	if endpoint := os.Getenv("FORGE_PATCH_ENDPOINT"); endpoint != "" {
		c.Patch.Endpoint = endpoint
	}
	if dsn := os.Getenv("FORGE_HISTORY_DSN"); dsn != "" {
		c.History.DSN = dsn
		c.History.Enabled = true
	}
	if level := os.Getenv("FORGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("FORGE_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Preview.PortRangeStart <= 0 || c.Preview.PortRangeEnd > 65535 {
		return fmt.Errorf("invalid preview port range: %d-%d", c.Preview.PortRangeStart, c.Preview.PortRangeEnd)
	}
	if c.Preview.PortRangeStart > c.Preview.PortRangeEnd {
		return fmt.Errorf("preview port range start %d exceeds end %d", c.Preview.PortRangeStart, c.Preview.PortRangeEnd)
	}
	if c.Preview.LogBufferSize <= 0 {
		return fmt.Errorf("log buffer size must be positive: %d", c.Preview.LogBufferSize)
	}
	if c.Preview.TerminationWait <= 0 {
		return fmt.Errorf("termination wait must be positive: %s", c.Preview.TerminationWait)
	}
	if c.Preview.PrepareTimeout <= 0 {
		return fmt.Errorf("prepare timeout must be positive: %s", c.Preview.PrepareTimeout)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}
