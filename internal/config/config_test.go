package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"CF_CONFIG", "CF_PROVIDER", "CF_API_TOKEN", "CF_API_EMAIL", "CF_API_KEY", "CF_API_URL",
	"CF_ACCOUNT", "CF_CACHEFILE", "CF_CACHETIME", "CF_CACHEFMODE", "CF_DNS_SERVERS",
	"CF_POLL_INTERVAL", "CF_DEBUG", "CF_STRICT_EXIT",
}

// clearEnv blanks every variable the loader reads; empty means unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Provider != "cloudflare" {
		t.Errorf("expected provider 'cloudflare', got %q", cfg.Provider)
	}
	if cfg.Cache.File != "/etc/dehydrated/cloudflare.json" {
		t.Errorf("expected default cache file, got %q", cfg.Cache.File)
	}
	if cfg.Cache.TTL != 30*24*time.Hour {
		t.Errorf("expected 30 day TTL, got %s", cfg.Cache.TTL)
	}
	mode, err := cfg.Cache.FileMode()
	if err != nil || mode != 0o600 {
		t.Errorf("expected mode 0600, got %o (err %v)", mode, err)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("expected 10s poll interval, got %s", cfg.PollInterval)
	}
	if len(cfg.DNSServers) != 0 {
		t.Errorf("expected system resolvers by default, got %v", cfg.DNSServers)
	}
	if cfg.Debug || cfg.StrictExit {
		t.Error("expected debug and strict exit to default to false")
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("CF_API_EMAIL", "admin@example.com")
	t.Setenv("CF_API_KEY", "globalkey")
	t.Setenv("CF_CACHEFILE", "/tmp/cf.json")
	t.Setenv("CF_CACHETIME", "3600")
	t.Setenv("CF_CACHEFMODE", "640")
	t.Setenv("CF_DNS_SERVERS", "1.1.1.1, 8.8.8.8,")
	t.Setenv("CF_POLL_INTERVAL", "2")
	t.Setenv("CF_DEBUG", "1")
	t.Setenv("CF_STRICT_EXIT", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Settings["api_email"] != "admin@example.com" || cfg.Settings["api_key"] != "globalkey" {
		t.Errorf("expected credentials in settings, got %v", cfg.Settings)
	}
	if cfg.Cache.File != "/tmp/cf.json" {
		t.Errorf("expected cache file '/tmp/cf.json', got %q", cfg.Cache.File)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected 1h TTL, got %s", cfg.Cache.TTL)
	}
	if mode, _ := cfg.Cache.FileMode(); mode != fs.FileMode(0o640) {
		t.Errorf("expected mode 0640, got %o", mode)
	}
	if !reflect.DeepEqual(cfg.DNSServers, []string{"1.1.1.1", "8.8.8.8"}) {
		t.Errorf("expected two DNS servers, got %v", cfg.DNSServers)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("expected 2s poll interval, got %s", cfg.PollInterval)
	}
	if !cfg.Debug || !cfg.StrictExit {
		t.Error("expected debug and strict exit to be enabled")
	}
	if cfg.AccountID() != "admin@example.com" {
		t.Errorf("expected account from API email, got %q", cfg.AccountID())
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_CF_TOKEN", "token-from-env")

	path := writeConfig(t, `provider: cloudflare
account: ops
settings:
  api_token: "${TEST_CF_TOKEN}"
  base_url: "https://cf.internal/client/v4"
cache:
  file: /var/lib/dehydrated/zones.json
  ttl: 48h
  mode: "0640"
dns_servers:
  - 9.9.9.9
poll_interval: 5s
strict_exit: true
`)
	t.Setenv("CF_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Settings["api_token"] != "token-from-env" {
		t.Errorf("expected api_token expanded from env, got %q", cfg.Settings["api_token"])
	}
	if cfg.Settings["base_url"] != "https://cf.internal/client/v4" {
		t.Errorf("expected base_url unchanged, got %q", cfg.Settings["base_url"])
	}
	if cfg.Cache.File != "/var/lib/dehydrated/zones.json" || cfg.Cache.TTL != 48*time.Hour {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if mode, _ := cfg.Cache.FileMode(); mode != 0o640 {
		t.Errorf("expected mode 0640, got %o", mode)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("expected 5s poll interval, got %s", cfg.PollInterval)
	}
	if !cfg.StrictExit {
		t.Error("expected strict_exit from file")
	}
	if cfg.AccountID() != "ops" {
		t.Errorf("expected explicit account 'ops', got %q", cfg.AccountID())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `settings:
  api_token: file-token
cache:
  file: /from/file.json
`)
	t.Setenv("CF_API_TOKEN", "env-token")
	t.Setenv("CF_CACHEFILE", "/from/env.json")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Settings["api_token"] != "env-token" {
		t.Errorf("expected env token to win, got %q", cfg.Settings["api_token"])
	}
	if cfg.Cache.File != "/from/env.json" {
		t.Errorf("expected env cache file to win, got %q", cfg.Cache.File)
	}
	if cfg.Provider != "cloudflare" {
		t.Errorf("expected default provider when file omits it, got %q", cfg.Provider)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "cache time not a number", env: map[string]string{"CF_CACHETIME": "a month"}},
		{name: "negative cache time", env: map[string]string{"CF_CACHETIME": "-60"}},
		{name: "mode not octal", env: map[string]string{"CF_CACHEFMODE": "rw-------"}},
		{name: "mode with type bits", env: map[string]string{"CF_CACHEFMODE": "4755"}},
		{name: "bad poll interval", env: map[string]string{"CF_POLL_INTERVAL": "soon"}},
		{name: "negative poll interval", env: map[string]string{"CF_POLL_INTERVAL": "-5s"}},
		{name: "poll interval zero", env: map[string]string{"CF_POLL_INTERVAL": "0"}},
		{name: "poll interval zero in file", file: "poll_interval: 0s\n"},
		{name: "empty provider in file", file: "provider: \"\"\n"},
		{name: "malformed yaml", file: "provider: [cloudflare\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			if _, err := LoadFromPath(path); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_ZeroCacheTimeDisablesCache(t *testing.T) {
	clearEnv(t)
	t.Setenv("CF_CACHETIME", "0")

	cfg, err := LoadFromPath("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.TTL != 0 {
		t.Errorf("expected zero TTL, got %s", cfg.Cache.TTL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromPath("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAccountID_TokenFingerprint(t *testing.T) {
	a := &Config{Settings: map[string]string{"api_token": "token-a"}}
	b := &Config{Settings: map[string]string{"api_token": "token-b"}}

	if !strings.HasPrefix(a.AccountID(), "token:") {
		t.Errorf("expected token fingerprint, got %q", a.AccountID())
	}
	if strings.Contains(a.AccountID(), "token-a") {
		t.Error("fingerprint must not contain the token itself")
	}
	if a.AccountID() == b.AccountID() {
		t.Error("different tokens must give different account ids")
	}
	if a.AccountID() != (&Config{Settings: map[string]string{"api_token": "token-a"}}).AccountID() {
		t.Error("fingerprint must be stable")
	}
	if (&Config{Settings: map[string]string{}}).AccountID() != "" {
		t.Error("expected empty account without credentials")
	}
}
