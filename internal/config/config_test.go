package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
upstream:
  base_url: https://transit.example.com/bustime/api/v3/
  api_key: test-key
  feed: metro
cache:
  ttls:
    getvehicles: 2s
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if got, want := cfg.Upstream.BaseURL, "https://transit.example.com/bustime/api/v3"; got != want {
		t.Errorf("base_url = %q, want %q (trailing slash trimmed)", got, want)
	}
	if cfg.Upstream.APIKey != "test-key" {
		t.Errorf("api_key = %q, want %q", cfg.Upstream.APIKey, "test-key")
	}
	// Defaults survive partial overrides.
	if cfg.Upstream.ResponseKey != "bustime-response" {
		t.Errorf("response_key = %q, want default", cfg.Upstream.ResponseKey)
	}
	if cfg.Upstream.MaxRetries != 2 {
		t.Errorf("max_retries = %d, want default 2", cfg.Upstream.MaxRetries)
	}
	if got := cfg.Cache.TTLFor("getvehicles"); got != 2*time.Second {
		t.Errorf("getvehicles ttl = %v, want 2s", got)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("BUSBRIDGE_TEST_KEY", "secret")

	got := expandEnv([]byte("api_key: ${BUSBRIDGE_TEST_KEY}"))
	if string(got) != "api_key: secret" {
		t.Errorf("expandEnv = %q", got)
	}

	// Unknown variables are left as-is.
	got = expandEnv([]byte("api_key: ${BUSBRIDGE_TEST_UNSET}"))
	if string(got) != "api_key: ${BUSBRIDGE_TEST_UNSET}" {
		t.Errorf("expandEnv = %q", got)
	}
}

func TestTTLFor(t *testing.T) {
	t.Parallel()

	c := CacheConfig{
		Enabled:    true,
		DefaultTTL: 30 * time.Second,
		TTLs:       map[string]time.Duration{"getroutes": time.Hour},
	}
	if got := c.TTLFor("getroutes"); got != time.Hour {
		t.Errorf("override ttl = %v, want 1h", got)
	}
	if got := c.TTLFor("gettime"); got != 30*time.Second {
		t.Errorf("fallback ttl = %v, want 30s", got)
	}

	c.Enabled = false
	if got := c.TTLFor("getroutes"); got != 0 {
		t.Errorf("disabled cache ttl = %v, want 0", got)
	}
}
