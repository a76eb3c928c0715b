package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{DSN: "postgres://localhost/trialdex"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Search.TopK != 200 || cfg.Search.QueryTimeoutMs != 5000 {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Workers.Concurrency != 8 {
		t.Errorf("concurrency = %d, want 8", cfg.Workers.Concurrency)
	}
	if cfg.Ingest.PageSize != 100 {
		t.Errorf("page size = %d, want 100", cfg.Ingest.PageSize)
	}
	if cfg.Extraction.SchemaVersion != "v1" {
		t.Errorf("schema version = %q", cfg.Extraction.SchemaVersion)
	}
	if cfg.Extraction.MaxCorrections != 2 {
		t.Errorf("max corrections = %d, want 2", cfg.Extraction.MaxCorrections)
	}
	if cfg.Search.QueryTimeout() != 5*time.Second {
		t.Errorf("query timeout = %v", cfg.Search.QueryTimeout())
	}
	if cfg.Cache.Enabled() {
		t.Error("cache enabled without addrs")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"memory needs no dsn", func(c *Config) { c.Database.Driver = "memory"; c.Database.DSN = "" }, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "valkey" }, "database.driver"},
		{"unknown provider", func(c *Config) { c.Extraction.Provider = "gemini" }, "extraction.provider"},
		{"page size too large", func(c *Config) { c.Ingest.PageSize = 5000 }, "ingest.page_size"},
		{"too many workers", func(c *Config) { c.Workers.Concurrency = 65 }, "workers.concurrency"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TRIALDEX_TEST_DSN", "postgres://db/trials")

	yaml := []byte(`
http:
  port: ${TRIALDEX_TEST_PORT:-9090}
database:
  dsn: ${TRIALDEX_TEST_DSN}
cache:
  addrs: ["${TRIALDEX_TEST_REDIS:-localhost:6379}"]
`)
	cfg, err := Parse(yaml)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Database.DSN != "postgres://db/trials" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if !cfg.Cache.Enabled() || cfg.Cache.Addrs[0] != "localhost:6379" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestLoad_LocalConfig(t *testing.T) {
	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("Load(local): %v", err)
	}
	if cfg.HTTP.Port == 0 {
		t.Error("port not set")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("does-not-exist"); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestApplyDefaults_DropsEmptyCacheAddrs(t *testing.T) {
	cfg := Config{Cache: CacheConfig{Addrs: []string{"", " "}}}
	cfg.ApplyDefaults()
	if cfg.Cache.Enabled() {
		t.Errorf("cache enabled with blank addrs: %v", cfg.Cache.Addrs)
	}
}

func TestRetryConfig_Policy(t *testing.T) {
	p := validConfig().Retry.Policy()

	if p.MaxAttempts != 5 || p.BackoffFactor != 2 {
		t.Errorf("policy = %+v", p)
	}
	if p.InitialDelay != 500*time.Millisecond || p.MaxDelay != 30*time.Second {
		t.Errorf("delays = %v..%v", p.InitialDelay, p.MaxDelay)
	}
	if p.MaxTotal != 2*time.Minute {
		t.Errorf("MaxTotal = %v, want 2m", p.MaxTotal)
	}
}

func TestApplyDefaults_KeepsDisabledCorrections(t *testing.T) {
	cfg := Config{Extraction: ExtractionConfig{MaxCorrections: -1}}
	cfg.ApplyDefaults()

	if cfg.Extraction.MaxCorrections != -1 {
		t.Errorf("max corrections = %d, want -1", cfg.Extraction.MaxCorrections)
	}
}
