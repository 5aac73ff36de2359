package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nasa-gibs/oetime/internal/config"
	"github.com/nasa-gibs/oetime/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// chdir changes the working directory to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

// writeConfig writes an oetime.yaml into dir and changes into dir.
func writeConfig(t *testing.T, dir string, f config.File) {
	t.Helper()
	if err := config.WriteFile(filepath.Join(dir, config.DefaultConfigFile), f); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chdir(t, dir)
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvBackend, config.EnvRedisAddr, config.EnvRedisPassword, config.EnvDBPath, config.EnvS3Endpoint} {
		t.Setenv(k, "")
	}
}

// ─── Defaults ─────────────────────────────────────────────────────────────────

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != config.DefaultBackend {
		t.Errorf("Backend: expected %q, got %q", config.DefaultBackend, cfg.Backend)
	}
	if cfg.RedisAddr != config.DefaultRedisAddr {
		t.Errorf("RedisAddr: expected %q, got %q", config.DefaultRedisAddr, cfg.RedisAddr)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("Timeout: expected %v, got %v", config.DefaultTimeout, cfg.Timeout)
	}
	if cfg.Concurrency != config.DefaultConcurrency {
		t.Errorf("Concurrency: expected %d, got %d", config.DefaultConcurrency, cfg.Concurrency)
	}
	if cfg.CreatedMarker != "created" {
		t.Errorf("CreatedMarker: expected created, got %q", cfg.CreatedMarker)
	}
	if cfg.BestOrder != "ascending" {
		t.Errorf("BestOrder: expected ascending, got %q", cfg.BestOrder)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath should have a default (home dir based) value")
	}
	if cfg.ConfigPath != "" {
		t.Errorf("ConfigPath should be empty without a file, got %q", cfg.ConfigPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

// ─── File ─────────────────────────────────────────────────────────────────────

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{
		Backend:      "bolt",
		DBPath:       "/var/lib/oetime/index.db",
		RedisCluster: "off",
		Timeout:      "5s",
		Concurrency:  4,
		Rate:         2.5,
		S3Endpoint:   "http://localhost:9000",
		S3PathStyle:  true,
		BestOrder:    "descending",
		LogFormat:    "json",
		MetricsFile:  "/var/lib/node_exporter/oetime.prom",
	})

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "bolt" || cfg.DBPath != "/var/lib/oetime/index.db" {
		t.Errorf("backend: got %q at %q", cfg.Backend, cfg.DBPath)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout: expected 5s, got %v", cfg.Timeout)
	}
	if cfg.Concurrency != 4 || cfg.Rate != 2.5 {
		t.Errorf("Concurrency/Rate: got %d / %g", cfg.Concurrency, cfg.Rate)
	}
	if !cfg.S3PathStyle || cfg.S3Endpoint != "http://localhost:9000" {
		t.Errorf("S3: got endpoint %q path style %v", cfg.S3Endpoint, cfg.S3PathStyle)
	}
	if cfg.BestOrder != "descending" || cfg.LogFormat != "json" {
		t.Errorf("BestOrder/LogFormat: got %q / %q", cfg.BestOrder, cfg.LogFormat)
	}
	if !filepath.IsAbs(cfg.ConfigPath) || filepath.Base(cfg.ConfigPath) != config.DefaultConfigFile {
		t.Errorf("ConfigPath: expected absolute path to %s, got %q", config.DefaultConfigFile, cfg.ConfigPath)
	}
}

func TestLoadInvalidTimeoutIgnored(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{Timeout: "soon"})

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timeout != config.DefaultTimeout {
		t.Errorf("invalid timeout should keep default, got %v", cfg.Timeout)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.DefaultConfigFile), []byte("backend: [redis\n"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	_, err := config.Load("")
	if !errors.Is(err, model.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

// ─── Precedence ───────────────────────────────────────────────────────────────

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{RedisAddr: "file:6379", Backend: "redis"})
	t.Setenv(config.EnvRedisAddr, "env:6379")
	t.Setenv(config.EnvBackend, "bolt")
	t.Setenv(config.EnvDBPath, "/tmp/env.db")
	t.Setenv(config.EnvS3Endpoint, "http://minio:9000")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisAddr != "env:6379" {
		t.Errorf("RedisAddr: expected env value, got %q", cfg.RedisAddr)
	}
	if cfg.Backend != "bolt" || cfg.DBPath != "/tmp/env.db" {
		t.Errorf("backend: got %q at %q", cfg.Backend, cfg.DBPath)
	}
	if cfg.S3Endpoint != "http://minio:9000" {
		t.Errorf("S3Endpoint: got %q", cfg.S3Endpoint)
	}
}

func TestLoadFlagOverridesEnvAndFile(t *testing.T) {
	clearEnv(t)
	writeConfig(t, t.TempDir(), config.File{RedisAddr: "file:6379"})
	t.Setenv(config.EnvRedisAddr, "env:6379")

	cfg, err := config.Load("flag:6379")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisAddr != "flag:6379" {
		t.Errorf("RedisAddr: expected flag value, got %q", cfg.RedisAddr)
	}
}

// ─── Validate ─────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			Backend: "redis", RedisAddr: "localhost:6379", RedisCluster: "auto",
			Concurrency: 1, BestOrder: "ascending", LogFormat: "console",
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(c *config.Config){
		"backend":       func(c *config.Config) { c.Backend = "memcache" },
		"redis_addr":    func(c *config.Config) { c.RedisAddr = "" },
		"db_path":       func(c *config.Config) { c.Backend, c.DBPath = "bolt", "" },
		"redis_cluster": func(c *config.Config) { c.RedisCluster = "maybe" },
		"best_order":    func(c *config.Config) { c.BestOrder = "random" },
		"concurrency":   func(c *config.Config) { c.Concurrency = 0 },
		"log_format":    func(c *config.Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(c)
		err := c.Validate()
		if !errors.Is(err, model.ErrConfig) {
			t.Errorf("%s: expected ErrConfig, got %v", name, err)
			continue
		}
		if !strings.Contains(err.Error(), name) {
			t.Errorf("%s: error should name the field: %v", name, err)
		}
	}
}

func TestRedactedPassword(t *testing.T) {
	c := &config.Config{RedisPassword: "hunter2"}
	if got := c.RedactedPassword(); strings.Contains(got, "hunter2") {
		t.Errorf("password leaked: %q", got)
	}
	if got := (&config.Config{}).RedactedPassword(); got != "" {
		t.Errorf("empty password should stay empty, got %q", got)
	}
}

// ─── Set / Template / WriteFile ───────────────────────────────────────────────

func TestFileSet(t *testing.T) {
	f := config.Template()
	for _, kv := range [][2]string{
		{"backend", "bolt"}, {"redis_db", "3"}, {"concurrency", "16"},
		{"rate", "12.5"}, {"s3_path_style", "true"}, {"Timeout", "1m"},
	} {
		if err := f.Set(kv[0], kv[1]); err != nil {
			t.Fatalf("Set(%s): %v", kv[0], err)
		}
	}
	if f.Backend != "bolt" || f.RedisDB != 3 || f.Concurrency != 16 || f.Rate != 12.5 || !f.S3PathStyle || f.Timeout != "1m" {
		t.Errorf("unexpected file after Set: %+v", f)
	}

	for _, kv := range [][2]string{{"concurrency", "many"}, {"timeout", "later"}, {"s3_path_style", "perhaps"}, {"api_key", "x"}} {
		if err := f.Set(kv[0], kv[1]); err == nil {
			t.Errorf("Set(%s, %s): expected error", kv[0], kv[1])
		}
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultConfigFile)
	orig := config.Template()
	orig.MetricsFile = "/tmp/oetime.prom"
	if err := config.WriteFile(path, orig); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := config.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if *got != orig {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, orig)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions: expected 0600, got %04o", perm)
	}
}

func TestTemplateDefaults(t *testing.T) {
	tmpl := config.Template()
	if tmpl.Backend != config.DefaultBackend {
		t.Errorf("Backend: expected %q, got %q", config.DefaultBackend, tmpl.Backend)
	}
	if tmpl.Concurrency != config.DefaultConcurrency {
		t.Errorf("Concurrency: expected %d, got %d", config.DefaultConcurrency, tmpl.Concurrency)
	}
	if tmpl.Timeout != "30s" {
		t.Errorf("Timeout: expected 30s, got %q", tmpl.Timeout)
	}
	if tmpl.RedisPassword != "" {
		t.Error("template must not carry a password")
	}
}
