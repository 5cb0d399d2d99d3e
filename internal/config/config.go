// Package config loads tweetmap configuration from defaults, an optional
// YAML file and TWEETMAP_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/joeblew999/plat-tweetmap/internal/geo"
	"github.com/joeblew999/plat-tweetmap/internal/logging"
	"github.com/joeblew999/plat-tweetmap/internal/visual"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// EnvPrefix prefixes environment overrides, e.g. TWEETMAP_SERVER_PORT.
const EnvPrefix = "TWEETMAP_"

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{"config.yaml", "config.yml", "/etc/tweetmap/config.yaml"}

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	API     APIConfig      `koanf:"api"`
	Backend BackendConfig  `koanf:"backend"`
	Auth    AuthConfig     `koanf:"auth"`
	Logging logging.Config `koanf:"logging"`
	Map     MapConfig      `koanf:"map"`
	Style   visual.Tables  `koanf:"style"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty disables cross-origin access.
	CORSOrigins []string `koanf:"cors_origins"`
	// LoginRateLimit caps login attempts per client IP per minute; 0
	// turns the limit off.
	LoginRateLimit int `koanf:"login_rate_limit"`
	// TemplatesDir, when set, reloads HTML fragments from disk on every
	// page load. Development only.
	TemplatesDir string `koanf:"templates_dir"`
	// RegionSessionTTL discards marker-drag sessions left idle this long.
	RegionSessionTTL time.Duration `koanf:"region_session_ttl"`
	// ViewTTL discards per-tab dashboard state left idle this long.
	ViewTTL time.Duration `koanf:"view_ttl"`
}

// APIConfig configures the remote collection API client.
type APIConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	// BreakerFailures consecutive failures open the circuit for
	// BreakerCooldown.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
}

// BackendConfig selects where dashboard data comes from.
type BackendConfig struct {
	// Kind is "remote" (collection API) or "duckdb" (embedded store).
	Kind    string `koanf:"kind"`
	DataDir string `koanf:"data_dir"`
	Seed    bool   `koanf:"seed"`
}

// AuthConfig configures session tokens and the login account.
type AuthConfig struct {
	Secret       string        `koanf:"secret"`
	CookieName   string        `koanf:"cookie_name"`
	SessionTTL   time.Duration `koanf:"session_ttl"`
	Username     string        `koanf:"username"`
	PasswordHash string        `koanf:"password_hash"`
}

// MapConfig configures the map view defaults.
type MapConfig struct {
	Longitude     float64 `koanf:"longitude"`
	Latitude      float64 `koanf:"latitude"`
	Zoom          float64 `koanf:"zoom"`
	Source        string  `koanf:"source"`
	ScoreProperty string  `koanf:"score_property"`
}

// Center returns the initial map center.
func (m MapConfig) Center() geo.GeoPoint {
	return geo.GeoPoint{Longitude: m.Longitude, Latitude: m.Latitude}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			LoginRateLimit:   10,
			RegionSessionTTL: 30 * time.Minute,
			ViewTTL:          30 * time.Minute,
		},
		API: APIConfig{
			BaseURL:         "http://localhost:5000",
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		Backend: BackendConfig{Kind: "remote", DataDir: ".data", Seed: false},
		Auth: AuthConfig{
			CookieName: "tweetmap_session",
			SessionTTL: 24 * time.Hour,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Map: MapConfig{
			Longitude:     -122.4,
			Latitude:      37.8,
			Zoom:          14,
			Source:        "tweets",
			ScoreProperty: geo.DefaultScoreProperty,
		},
	}
}

// Load builds the configuration. An empty path falls back to CONFIG_PATH
// and then DefaultPaths; a missing default file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if p := resolvePath(path); p != "" {
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	} else if path != "" {
		return Config{}, fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Style = cfg.Style.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.LoginRateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.login_rate_limit %d is negative", c.Server.LoginRateLimit))
	}
	if c.Server.RegionSessionTTL < 0 {
		errs = append(errs, fmt.Errorf("server.region_session_ttl %s is negative", c.Server.RegionSessionTTL))
	}
	if c.Server.ViewTTL < 0 {
		errs = append(errs, fmt.Errorf("server.view_ttl %s is negative", c.Server.ViewTTL))
	}
	switch c.Backend.Kind {
	case "remote":
		if c.API.BaseURL == "" {
			errs = append(errs, errors.New("api.base_url is required for the remote backend"))
		}
	case "duckdb":
	default:
		errs = append(errs, fmt.Errorf("backend.kind %q: want remote or duckdb", c.Backend.Kind))
	}
	if err := c.Map.Center().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("map center: %w", err))
	}
	if err := c.Style.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("style: %w", err))
	}
	return errors.Join(errs...)
}

func resolvePath(path string) string {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps TWEETMAP_API_BASE_URL to api.base_url. The first underscore
// after the prefix separates the section from the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + key
}
