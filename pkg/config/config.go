// Package config loads and merges configuration from defaults, config
// files, .env files, environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the downloader
type Config struct {
	// Output naming and placement
	Output OutputConfig `yaml:"output" json:"output"`

	// Download orchestration settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Network and transport settings
	Network NetworkConfig `yaml:"network" json:"network"`

	// Post-processing settings
	Postprocess PostprocessConfig `yaml:"postprocess" json:"postprocess"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// OutputConfig holds output naming configuration
type OutputConfig struct {
	Directory         string `yaml:"directory" json:"directory"`
	Template          string `yaml:"template" json:"template"`
	RestrictFilenames bool   `yaml:"restrict_filenames" json:"restrict_filenames"`
	TrimNames         int    `yaml:"trim_names" json:"trim_names"`
	NAPlaceholder     string `yaml:"na_placeholder" json:"na_placeholder"`
}

// DownloadConfig holds download orchestration configuration
type DownloadConfig struct {
	Concurrency    int           `yaml:"concurrency" json:"concurrency"`
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" json:"attempt_timeout"`
	LimitRate      string        `yaml:"limit_rate" json:"limit_rate"`
	SkipExisting   bool          `yaml:"skip_existing" json:"skip_existing"`
	Quality        string        `yaml:"quality" json:"quality"`
}

// NetworkConfig holds transport configuration
type NetworkConfig struct {
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	Proxy     string        `yaml:"proxy" json:"proxy"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// RequestsPerMinute paces all HTTP requests; zero disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// PostprocessConfig holds pipeline configuration
type PostprocessConfig struct {
	ConvertTo        string `yaml:"convert_to" json:"convert_to"`
	EmbedMetadata    bool   `yaml:"embed_metadata" json:"embed_metadata"`
	WriteInfoJSON    bool   `yaml:"write_info_json" json:"write_info_json"`
	WriteDescription bool   `yaml:"write_description" json:"write_description"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Directory: ".",
			Template:  "%(title)s [%(id)s].%(ext)s",
		},
		Download: DownloadConfig{
			Concurrency:    4,
			MaxAttempts:    10,
			AttemptTimeout: 60 * time.Second,
			SkipExisting:   true,
			Quality:        "best",
		},
		Network: NetworkConfig{
			Timeout: 0,
		},
		Postprocess: PostprocessConfig{},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if dir := os.Getenv("IMAGEDL_OUTPUT_DIR"); dir != "" {
		c.Output.Directory = dir
	}
	if tmpl := os.Getenv("IMAGEDL_OUTPUT_TEMPLATE"); tmpl != "" {
		c.Output.Template = tmpl
	}
	if concurrency := os.Getenv("IMAGEDL_CONCURRENCY"); concurrency != "" {
		if val, err := strconv.Atoi(concurrency); err == nil && val > 0 {
			c.Download.Concurrency = val
		}
	}
	if attempts := os.Getenv("IMAGEDL_MAX_ATTEMPTS"); attempts != "" {
		if val, err := strconv.Atoi(attempts); err == nil && val > 0 {
			c.Download.MaxAttempts = val
		}
	}
	if rate := os.Getenv("IMAGEDL_LIMIT_RATE"); rate != "" {
		c.Download.LimitRate = rate
	}
	if ua := os.Getenv("IMAGEDL_USER_AGENT"); ua != "" {
		c.Network.UserAgent = ua
	}
	if proxy := os.Getenv("IMAGEDL_PROXY"); proxy != "" {
		c.Network.Proxy = proxy
	}
	if rpm := os.Getenv("IMAGEDL_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val >= 0 {
			c.Network.RequestsPerMinute = val
		}
	}
	if level := os.Getenv("IMAGEDL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".imagedl.yaml",
		".imagedl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "imagedl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "imagedl", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".imagedl.yaml"),
		filepath.Join(os.Getenv("HOME"), ".imagedl.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Download.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Download.Concurrency > 32 {
		errs = append(errs, errors.New("concurrency should not exceed 32"))
	}
	if c.Download.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Network.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.Template == "" {
		errs = append(errs, errors.New("output template is required"))
	}

	switch c.Download.Quality {
	case "", "best", "worst", "original":
	default:
		errs = append(errs, fmt.Errorf("invalid quality %q", c.Download.Quality))
	}

	switch strings.ToLower(c.Postprocess.ConvertTo) {
	case "", "jpg", "jpeg", "png", "gif":
	default:
		errs = append(errs, fmt.Errorf("cannot convert to %q", c.Postprocess.ConvertTo))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".imagedl.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return config, nil
}
