package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	DefaultProvider     = "cloudflare"
	DefaultCacheFile    = "/etc/dehydrated/cloudflare.json"
	DefaultCacheTTL     = 30 * 24 * time.Hour
	DefaultCacheMode    = "600"
	DefaultPollInterval = 10 * time.Second
)

// Config holds everything the hook needs for one invocation.
type Config struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`

	// Account scopes the zone cache. Derived from the credentials when empty.
	Account string `yaml:"account"`

	Cache        CacheConfig   `yaml:"cache"`
	DNSServers   []string      `yaml:"dns_servers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debug        bool          `yaml:"debug"`
	StrictExit   bool          `yaml:"strict_exit"`
}

// CacheConfig controls the persisted zone cache.
type CacheConfig struct {
	File string        `yaml:"file"`
	TTL  time.Duration `yaml:"ttl"`
	Mode string        `yaml:"mode"` // octal, e.g. "600"
}

// FileMode parses Mode as an octal permission set.
func (c CacheConfig) FileMode() (fs.FileMode, error) {
	m, err := strconv.ParseUint(c.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid cache file mode %q: %w", c.Mode, err)
	}
	if m > 0o777 {
		return 0, fmt.Errorf("invalid cache file mode %q: only permission bits are allowed", c.Mode)
	}
	return fs.FileMode(m), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: DefaultProvider,
		Settings: map[string]string{},
		Cache: CacheConfig{
			File: DefaultCacheFile,
			TTL:  DefaultCacheTTL,
			Mode: DefaultCacheMode,
		},
		PollInterval: DefaultPollInterval,
	}
}

// Load reads the optional YAML file named by CF_CONFIG and applies the CF_*
// environment overrides on top of it.
func Load() (*Config, error) {
	return LoadFromPath(os.Getenv("CF_CONFIG"))
}

// LoadFromPath reads the YAML file at path, if path is not empty, and applies
// the CF_* environment overrides on top of it.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if cfg.Settings == nil {
			cfg.Settings = map[string]string{}
		}
		// Expand ${ENV_VAR} references in setting values.
		for k, v := range cfg.Settings {
			cfg.Settings[k] = os.ExpandEnv(v)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var settingEnv = map[string]string{
	"CF_API_TOKEN": "api_token",
	"CF_API_EMAIL": "api_email",
	"CF_API_KEY":   "api_key",
	"CF_API_URL":   "base_url",
}

func (c *Config) applyEnv() error {
	for env, key := range settingEnv {
		if v := os.Getenv(env); v != "" {
			c.Settings[key] = v
		}
	}

	if v := os.Getenv("CF_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("CF_ACCOUNT"); v != "" {
		c.Account = v
	}
	if v := os.Getenv("CF_CACHEFILE"); v != "" {
		c.Cache.File = v
	}
	if v := os.Getenv("CF_CACHETIME"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CF_CACHETIME %q: %w", v, err)
		}
		c.Cache.TTL = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("CF_CACHEFMODE"); v != "" {
		c.Cache.Mode = v
	}
	if v := os.Getenv("CF_DNS_SERVERS"); v != "" {
		c.DNSServers = splitList(v)
	}
	if v := os.Getenv("CF_POLL_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid CF_POLL_INTERVAL %q: %w", v, err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("CF_DEBUG"); v != "" {
		c.Debug = truthy(v)
	}
	if v := os.Getenv("CF_STRICT_EXIT"); v != "" {
		c.StrictExit = truthy(v)
	}
	return nil
}

// Validate checks the configuration for values the hook cannot run with.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("config: missing required field 'provider'")
	}
	if c.Cache.File == "" {
		return fmt.Errorf("config: missing cache file path")
	}
	// A zero ttl expires every entry on read, which disables the cache.
	if c.Cache.TTL < 0 {
		return fmt.Errorf("config: cache ttl must not be negative, got %s", c.Cache.TTL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive, got %s", c.PollInterval)
	}
	if _, err := c.Cache.FileMode(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AccountID identifies the credentials the zone cache belongs to: the
// configured account, else the API email, else a fingerprint of the token.
func (c *Config) AccountID() string {
	if c.Account != "" {
		return c.Account
	}
	if email := c.Settings["api_email"]; email != "" {
		return email
	}
	if token := c.Settings["api_token"]; token != "" {
		sum := sha256.Sum256([]byte(token))
		return "token:" + hex.EncodeToString(sum[:8])
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseSeconds accepts a Go duration ("15s") or a plain number of seconds.
func parseSeconds(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
