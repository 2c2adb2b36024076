// Package config loads and hot-reloads the proxy's configuration file:
// yaml.v3 for the on-disk format, godotenv for local environment
// overrides, hujson for tolerating a JSON-with-comments variant some
// deployments ship, and fsnotify to pick up edits without a restart.
package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Config is the proxy's full configuration surface.
type Config struct {
	Port                  int    `yaml:"port"`
	GoogleCloudProject    string `yaml:"google_cloud_project"`
	LogLevel              string `yaml:"log_level"`
	DisableBrowserAuth    bool   `yaml:"disable_browser_auth"`
	DisableGoogleSearch   bool   `yaml:"disable_google_search"`
	DisableAutoModelSwitch bool  `yaml:"disable_auto_model_switch"`

	SignatureCachePath string `yaml:"signature_cache_path"`
	RequestLogPath     string `yaml:"request_log_path"`
	CredentialsPath    string `yaml:"credentials_path"`
}

// Default returns the built-in defaults. The CLI layer overlays the config
// file on them, then any explicitly set flags; GOOGLE_CLOUD_PROJECT
// supplies the project only when neither the flag nor the file sets one.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Port:               8080,
		LogLevel:           "info",
		SignatureCachePath: home + "/.gemini/signature-cache.db",
		RequestLogPath:     home + "/.gemini/requests.log",
		CredentialsPath:    home + "/.gemini/oauth_creds.json",
	}
}

// Load reads path over the defaults. Whatever the file's extension, its
// text is first passed through hujson.Standardize, so JSON and
// JSON-with-comments are accepted; text that is not JWCC (such as plain
// YAML) is kept as it is. The result is decoded with yaml.v3. A missing
// file is not an error: Default() is returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err == nil {
		data = standardized
	}
	// hujson.Standardize rejects text that isn't JWCC, such as plain
	// YAML; a failure here just means "not JWCC", not malformed, so the
	// raw text falls through to the yaml.v3 decode.

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file's values into the process environment,
// ignoring a missing file.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: load dotenv %s: %w", path, err)
	}
	return nil
}

// Store is an atomically-swappable config holder: readers call Get()
// without locking; Reload() installs a new snapshot as one pointer swap
// so readers never observe a partially-applied reload.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore wraps an initial config in a Store.
func NewStore(initial *Config) *Store {
	s := &Store{}
	s.current.Store(initial)
	return s
}

// Get returns the current config snapshot. Safe for concurrent use.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// Reload re-reads path and atomically installs the result, leaving the
// previous snapshot in place (and returning its error) on parse failure.
func (s *Store) Reload(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}
