package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saurabh6354/distributed-web-crawler/internal/config"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerPoolSize != 4 {
		t.Errorf("WorkerPoolSize = %d, want default 4", cfg.WorkerPoolSize)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want default 10s", cfg.FetchTimeout)
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent default was not applied")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Errorf("Redis.Address = %q, want default localhost:6379", cfg.Redis.Address)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
worker_pool_size: 8
user_agent: "test-agent/1.0"
postgres:
  host: db.internal
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerPoolSize != 8 {
		t.Errorf("WorkerPoolSize = %d, want 8", cfg.WorkerPoolSize)
	}
	if cfg.UserAgent != "test-agent/1.0" {
		t.Errorf("UserAgent = %q, want test-agent/1.0", cfg.UserAgent)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("Postgres.Host = %q, want db.internal", cfg.Postgres.Host)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, "worker_pool_size: 8\n")
	t.Setenv("WORKER_POOL_SIZE", "16")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerPoolSize != 16 {
		t.Errorf("WorkerPoolSize = %d, want env override 16", cfg.WorkerPoolSize)
	}
}

func TestLoad_EnvDurationAcceptsBareSecondsOrGoSyntax(t *testing.T) {
	path := writeConfigFile(t, "")
	t.Setenv("FETCH_TIMEOUT_SECONDS", "45")
	t.Setenv("CLAIM_TTL_SECONDS", "2m")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FetchTimeout != 45*time.Second {
		t.Errorf("FetchTimeout = %v, want 45s (bare integer as seconds)", cfg.FetchTimeout)
	}
	if cfg.ClaimTTL != 2*time.Minute {
		t.Errorf("ClaimTTL = %v, want 2m (Go duration syntax)", cfg.ClaimTTL)
	}
}

func TestLoad_ElasticsearchAddressesFromEnv(t *testing.T) {
	path := writeConfigFile(t, "")
	t.Setenv("ELASTICSEARCH_ADDRESSES", "http://es1:9200, http://es2:9200")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"http://es1:9200", "http://es2:9200"}
	if len(cfg.Elasticsearch.Addresses) != len(want) {
		t.Fatalf("Addresses = %v, want %v", cfg.Elasticsearch.Addresses, want)
	}
	for i := range want {
		if cfg.Elasticsearch.Addresses[i] != want[i] {
			t.Errorf("Addresses[%d] = %q, want %q", i, cfg.Elasticsearch.Addresses[i], want[i])
		}
	}
	if !cfg.Elasticsearch.Enabled() {
		t.Error("Elasticsearch should be enabled once addresses are set")
	}
}

func TestElasticsearchConfig_DisabledWhenEmpty(t *testing.T) {
	var e config.ElasticsearchConfig
	if e.Enabled() {
		t.Error("Enabled() should be false with no addresses")
	}
}

func TestPath(t *testing.T) {
	if got := config.Path("config.yml"); got != "config.yml" {
		t.Errorf("Path with no CONFIG_PATH = %q, want config.yml", got)
	}

	t.Setenv("CONFIG_PATH", "/etc/crawler/config.yml")
	if got := config.Path("config.yml"); got != "/etc/crawler/config.yml" {
		t.Errorf("Path with CONFIG_PATH set = %q, want /etc/crawler/config.yml", got)
	}
}
