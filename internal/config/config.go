// Package config handles loading and resolving oetime configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (applied by the caller after Load)
//  2. Environment variables OETIME_* and AWS_ENDPOINT_URL_S3
//  3. oetime.yaml in the current working directory
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nasa-gibs/oetime/internal/best"
	"github.com/nasa-gibs/oetime/internal/model"
)

const (
	DefaultConfigFile  = "oetime.yaml"
	DefaultFormat      = "table"
	DefaultBackend     = "redis"
	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultCluster     = "auto"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 10
	DefaultRate        = 50.0
	DefaultMarker      = "created"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"

	EnvBackend       = "OETIME_BACKEND"
	EnvRedisAddr     = "OETIME_REDIS_ADDR"
	EnvRedisPassword = "OETIME_REDIS_PASSWORD"
	EnvDBPath        = "OETIME_DB_PATH"
	EnvS3Endpoint    = "AWS_ENDPOINT_URL_S3"
)

// File is the on-disk representation of oetime.yaml.
type File struct {
	Backend       string  `yaml:"backend,omitempty"`
	RedisAddr     string  `yaml:"redis_addr,omitempty"`
	RedisPassword string  `yaml:"redis_password,omitempty"`
	RedisDB       int     `yaml:"redis_db,omitempty"`
	RedisCluster  string  `yaml:"redis_cluster,omitempty"`
	DBPath        string  `yaml:"db_path,omitempty"`
	DefaultFormat string  `yaml:"default_format,omitempty"`
	Timeout       string  `yaml:"timeout,omitempty"`
	Concurrency   int     `yaml:"concurrency,omitempty"`
	Rate          float64 `yaml:"rate,omitempty"`
	S3Endpoint    string  `yaml:"s3_endpoint,omitempty"`
	S3Region      string  `yaml:"s3_region,omitempty"`
	S3PathStyle   bool    `yaml:"s3_path_style,omitempty"`
	CreatedMarker string  `yaml:"created_marker,omitempty"`
	BestOrder     string  `yaml:"best_order,omitempty"`
	LogLevel      string  `yaml:"log_level,omitempty"`
	LogFormat     string  `yaml:"log_format,omitempty"`
	LogFile       string  `yaml:"log_file,omitempty"`
	MetricsFile   string  `yaml:"metrics_file,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisCluster  string // auto|on|off
	DBPath        string
	Format        string
	Timeout       time.Duration
	Concurrency   int
	Rate          float64 // S3 list requests per second
	S3Endpoint    string
	S3Region      string
	S3PathStyle   bool
	CreatedMarker string
	BestOrder     string
	LogLevel      string
	LogFormat     string
	LogFile       string
	MetricsFile   string
	ConfigPath    string // path of the oetime.yaml that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Load resolves configuration from all sources.
// flagRedisAddr is the value of --redis (empty string if not set).
func Load(flagRedisAddr string) (*Config, error) {
	cfg := &Config{
		Backend:       DefaultBackend,
		RedisAddr:     DefaultRedisAddr,
		RedisCluster:  DefaultCluster,
		Format:        DefaultFormat,
		Timeout:       DefaultTimeout,
		Concurrency:   DefaultConcurrency,
		Rate:          DefaultRate,
		CreatedMarker: DefaultMarker,
		BestOrder:     best.Ascending.String(),
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
	}

	// Layer 1: oetime.yaml (lowest priority)
	f, path, err := loadFile()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if f != nil {
		applyFile(cfg, f, path)
	}

	// Layer 2: environment
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvS3Endpoint); v != "" {
		cfg.S3Endpoint = v
	}

	// Layer 3: CLI flag (highest priority)
	if flagRedisAddr != "" {
		cfg.RedisAddr = flagRedisAddr
	}

	// Set default DB path if still unset
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".oetime", "oetime.db")
		}
	}

	return cfg, nil
}

// Validate returns a configuration error for unusable settings.
func (c *Config) Validate() error {
	var problems []string
	switch c.Backend {
	case "redis":
		if c.RedisAddr == "" {
			problems = append(problems, "redis_addr is required for the redis backend")
		}
	case "bolt":
		if c.DBPath == "" {
			problems = append(problems, "db_path is required for the bolt backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("backend %q must be redis or bolt", c.Backend))
	}
	switch c.RedisCluster {
	case "auto", "on", "off":
	default:
		problems = append(problems, fmt.Sprintf("redis_cluster %q must be auto, on or off", c.RedisCluster))
	}
	if _, err := best.ParseOrder(c.BestOrder); err != nil {
		problems = append(problems, fmt.Sprintf("best_order %q must be ascending or descending", c.BestOrder))
	}
	if c.Concurrency <= 0 {
		problems = append(problems, "concurrency must be positive")
	}
	if c.Rate < 0 {
		problems = append(problems, "rate must not be negative")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log_format %q must be console or json", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", model.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RedactedPassword returns the Redis password masked for display.
func (c *Config) RedactedPassword() string {
	if c.RedisPassword == "" {
		return ""
	}
	return "****"
}

// loadFile attempts to read oetime.yaml from the current working directory.
// A missing file is reported with an error satisfying os.IsNotExist.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	f, err := ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// ReadFile parses one oetime.yaml.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", model.ErrConfig, path, err)
	}
	return &f, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	setString(&cfg.Backend, f.Backend)
	setString(&cfg.RedisAddr, f.RedisAddr)
	setString(&cfg.RedisPassword, f.RedisPassword)
	if f.RedisDB > 0 {
		cfg.RedisDB = f.RedisDB
	}
	setString(&cfg.RedisCluster, f.RedisCluster)
	setString(&cfg.DBPath, f.DBPath)
	setString(&cfg.Format, f.DefaultFormat)
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	setString(&cfg.S3Endpoint, f.S3Endpoint)
	setString(&cfg.S3Region, f.S3Region)
	cfg.S3PathStyle = cfg.S3PathStyle || f.S3PathStyle
	setString(&cfg.CreatedMarker, f.CreatedMarker)
	setString(&cfg.BestOrder, f.BestOrder)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogFormat, f.LogFormat)
	setString(&cfg.LogFile, f.LogFile)
	setString(&cfg.MetricsFile, f.MetricsFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Keys lists the names accepted by Set, in display order.
var Keys = []string{
	"backend", "redis_addr", "redis_password", "redis_db", "redis_cluster", "db_path",
	"default_format", "timeout", "concurrency", "rate",
	"s3_endpoint", "s3_region", "s3_path_style",
	"created_marker", "best_order", "log_level", "log_format", "log_file", "metrics_file",
}

// Set assigns one field by its YAML name.
func (f *File) Set(key, val string) error {
	switch strings.ToLower(key) {
	case "backend":
		f.Backend = val
	case "redis_addr":
		f.RedisAddr = val
	case "redis_password":
		f.RedisPassword = val
	case "redis_db":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("redis_db must be an integer")
		}
		f.RedisDB = n
	case "redis_cluster":
		f.RedisCluster = val
	case "db_path":
		f.DBPath = val
	case "default_format", "format":
		f.DefaultFormat = val
	case "timeout":
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("timeout must be a duration such as 30s")
		}
		f.Timeout = val
	case "concurrency":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("concurrency must be an integer")
		}
		f.Concurrency = n
	case "rate":
		r, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("rate must be a number")
		}
		f.Rate = r
	case "s3_endpoint":
		f.S3Endpoint = val
	case "s3_region":
		f.S3Region = val
	case "s3_path_style":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("s3_path_style must be true or false")
		}
		f.S3PathStyle = b
	case "created_marker":
		f.CreatedMarker = val
	case "best_order":
		f.BestOrder = val
	case "log_level":
		f.LogLevel = val
	case "log_format":
		f.LogFormat = val
	case "log_file":
		f.LogFile = val
	case "metrics_file":
		f.MetricsFile = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial oetime.yaml via `oetime config init`.
func Template() File {
	return File{
		Backend:       DefaultBackend,
		RedisAddr:     DefaultRedisAddr,
		RedisCluster:  DefaultCluster,
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		Concurrency:   DefaultConcurrency,
		Rate:          DefaultRate,
		CreatedMarker: DefaultMarker,
		BestOrder:     best.Ascending.String(),
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
