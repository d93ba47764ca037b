// Package config loads daemon configuration. Defaults come first,
// the YAML file overlays only what it names, and a handful of
// TABWARDEN_ environment variables overlay the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tabwarden/tabwarden/internal/alert"
)

// Log store backends.
const (
	LogStoreJSONL  = "jsonl"
	LogStoreSQLite = "sqlite"
)

// Config holds all daemon parameters. Durations are Go duration
// strings so the YAML stays readable.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	PolicyPath string `yaml:"policy_path"`

	LogStore   string `yaml:"log_store"`
	LogPath    string `yaml:"log_path"`
	SQLitePath string `yaml:"sqlite_path"`

	Cooldown     string `yaml:"cooldown"`
	ConsentTTL   string `yaml:"consent_ttl"`
	RetryBackoff string `yaml:"retry_backoff"`

	// RedisAddr switches consent state from in-process memory to
	// redis so multiple daemons can share one consent view.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	LogLevel string `yaml:"log_level"`

	Alerts []alert.WebhookConfig `yaml:"alerts"`
}

// DefaultDir returns the tabwarden state directory, ~/.tabwarden.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".tabwarden")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		ListenAddr:   "127.0.0.1:8710",
		PolicyPath:   filepath.Join(dir, "policy.json"),
		LogStore:     LogStoreJSONL,
		LogPath:      filepath.Join(dir, "decisions.log"),
		SQLitePath:   filepath.Join(dir, "decisions.db"),
		Cooldown:     "5s",
		ConsentTTL:   "10m",
		RetryBackoff: "300ms",
		LogLevel:     "info",
	}
}

// Load reads configuration from a YAML file. Empty path falls back to
// ~/.tabwarden/config.yaml. Missing file returns defaults. Invalid
// YAML returns an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(DefaultDir(), "config.yaml")
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(cfg)
	expandPaths(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandPaths resolves a leading ~ in the file paths so the YAML can
// use the same notation the documentation does.
func expandPaths(cfg *Config) {
	cfg.PolicyPath = expandHome(cfg.PolicyPath)
	cfg.LogPath = expandHome(cfg.LogPath)
	cfg.SQLitePath = expandHome(cfg.SQLitePath)
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
		return filepath.Join(home, path[2:])
	}
	return path
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TABWARDEN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TABWARDEN_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("TABWARDEN_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("TABWARDEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate rejects unusable values early, before anything is wired.
func (c *Config) Validate() error {
	switch c.LogStore {
	case LogStoreJSONL, LogStoreSQLite:
	default:
		return fmt.Errorf("invalid log_store %q (want %s or %s)", c.LogStore, LogStoreJSONL, LogStoreSQLite)
	}
	for name, v := range map[string]string{
		"cooldown":      c.Cooldown,
		"consent_ttl":   c.ConsentTTL,
		"retry_backoff": c.RetryBackoff,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return nil
}

// CooldownDuration returns the parsed prompt cooldown.
func (c *Config) CooldownDuration() time.Duration { return parseDuration(c.Cooldown) }

// ConsentTTLDuration returns the parsed consent window.
func (c *Config) ConsentTTLDuration() time.Duration { return parseDuration(c.ConsentTTL) }

// RetryBackoffDuration returns the parsed directive retry pause.
func (c *Config) RetryBackoffDuration() time.Duration { return parseDuration(c.RetryBackoff) }

// parseDuration assumes Validate already ran; anything unparseable
// comes back zero and the consumer applies its own default.
func parseDuration(v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// DefaultYAML returns a commented starter config for the init command.
func DefaultYAML() string {
	return `# tabwarden daemon configuration
# Generated by: tabwarden init

# Address the page WebSocket and admin API listen on. Keep this on
# loopback; the daemon trusts local pages.
listen_addr: "127.0.0.1:8710"

# Administrator policy document. Watched for changes; edits apply
# without a restart.
policy_path: "~/.tabwarden/policy.json"

# Decision log backend: jsonl (hash-chained, verifiable) or sqlite
# (queryable history).
log_store: "jsonl"
log_path: "~/.tabwarden/decisions.log"
sqlite_path: "~/.tabwarden/decisions.db"

# Prompt deduplication: one prompt per (tab, host) inside the cooldown,
# and a granted consent suppresses re-prompts for consent_ttl.
cooldown: "5s"
consent_ttl: "10m"

# Pause before a failed directive delivery's single retry.
retry_backoff: "300ms"

# Optional shared consent store. Leave empty for in-process state.
redis_addr: ""
redis_password: ""

log_level: "info"

# Admin webhooks. kinds: blocklist_hit | pin_proceed | shielded
#alerts:
#  - name: "security"
#    url: "https://hooks.example.com/tabwarden"
#    format: "json"
#    kinds: ["blocklist_hit", "pin_proceed"]
`
}
