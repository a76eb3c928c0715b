package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/trialdex/internal/retry"
)

// Config holds the trialdex configuration shared by the API server and the indexer.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Search     SearchConfig     `yaml:"search"`
	Workers    WorkersConfig    `yaml:"workers"`
	Retry      RetryConfig      `yaml:"retry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds record store settings.
type DatabaseConfig struct {
	Driver           string `yaml:"driver"` // postgres, memory (default: postgres)
	DSN              string `yaml:"dsn"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns"`
	ConnMaxLifetime  int    `yaml:"conn_max_lifetime_sec"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// CacheConfig holds the query-embedding cache settings. No addrs disables the cache.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLSec   int      `yaml:"ttl_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	BatchSize     int    `yaml:"batch_size"`
	MaxInputChars int    `yaml:"max_input_chars"`
}

// ExtractionConfig holds eligibility extraction settings.
type ExtractionConfig struct {
	Provider       string `yaml:"provider"` // anthropic, openai (default: anthropic)
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	MaxTokens      int    `yaml:"max_tokens"`
	MaxCorrections int    `yaml:"max_corrections"` // -1 disables corrective turns (default: 2)
	SchemaVersion  string `yaml:"schema_version"`
}

// IngestConfig holds registry feed settings.
type IngestConfig struct {
	BaseURL           string  `yaml:"base_url"`
	PageSize          int     `yaml:"page_size"`
	Limit             int     `yaml:"limit"` // 0 = whole registry
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// SearchConfig holds query engine settings.
type SearchConfig struct {
	TopK                int `yaml:"top_k"`
	QueryTimeoutMs      int `yaml:"query_timeout_ms"`
	ConditionFacetLimit int `yaml:"condition_facet_limit"`
}

// WorkersConfig holds pass concurrency.
type WorkersConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// RetryConfig holds backoff settings for external calls.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
	MaxTotalSec    int     `yaml:"max_total_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 300
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	addrs := c.Cache.Addrs[:0]
	for _, a := range c.Cache.Addrs {
		if strings.TrimSpace(a) != "" {
			addrs = append(addrs, a)
		}
	}
	c.Cache.Addrs = addrs
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 86400
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 100
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = 8000
	}
	if c.Extraction.Provider == "" {
		c.Extraction.Provider = "anthropic"
	}
	if c.Extraction.MaxTokens <= 0 {
		c.Extraction.MaxTokens = 2048
	}
	if c.Extraction.MaxCorrections == 0 {
		c.Extraction.MaxCorrections = 2
	}
	if c.Extraction.SchemaVersion == "" {
		c.Extraction.SchemaVersion = "v1"
	}
	if c.Ingest.BaseURL == "" {
		c.Ingest.BaseURL = "https://clinicaltrials.gov/api/v2"
	}
	if c.Ingest.PageSize <= 0 {
		c.Ingest.PageSize = 100
	}
	if c.Ingest.RequestsPerSecond <= 0 {
		c.Ingest.RequestsPerSecond = 5
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 200
	}
	if c.Search.QueryTimeoutMs <= 0 {
		c.Search.QueryTimeoutMs = 5000
	}
	if c.Search.ConditionFacetLimit <= 0 {
		c.Search.ConditionFacetLimit = 20
	}
	if c.Workers.Concurrency <= 0 {
		c.Workers.Concurrency = 8
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialDelayMs <= 0 {
		c.Retry.InitialDelayMs = 500
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = 30000
	}
	if c.Retry.BackoffFactor <= 1 {
		c.Retry.BackoffFactor = 2
	}
	if c.Retry.MaxTotalSec <= 0 {
		c.Retry.MaxTotalSec = 120
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be \"postgres\" or \"memory\", got %q", c.Database.Driver)
	}
	switch c.Extraction.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("extraction.provider must be \"anthropic\" or \"openai\", got %q", c.Extraction.Provider)
	}
	if c.Ingest.PageSize > 1000 {
		return fmt.Errorf("ingest.page_size must be at most 1000, got %d", c.Ingest.PageSize)
	}
	if c.Workers.Concurrency > 64 {
		return fmt.Errorf("workers.concurrency must be between 1 and 64, got %d", c.Workers.Concurrency)
	}
	return nil
}

// QueryTimeout returns the search deadline.
func (c SearchConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMs) * time.Millisecond
}

// Policy converts the section into a retry policy.
func (c RetryConfig) Policy() retry.Config {
	return retry.Config{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  time.Duration(c.InitialDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(c.MaxDelayMs) * time.Millisecond,
		BackoffFactor: c.BackoffFactor,
		MaxTotal:      time.Duration(c.MaxTotalSec) * time.Second,
	}
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// Enabled reports whether a cache server is configured.
func (c CacheConfig) Enabled() bool {
	return len(c.Addrs) > 0
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
