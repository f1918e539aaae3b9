// Package config loads the itinerary tool's YAML configuration.
//
// Precedence, lowest first: built-in defaults, the config file, environment
// variables, then command-line flags (applied by the cli package).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "itinerary.yaml"

// DefaultItineraryID names the itinerary commands act on when none is given.
const DefaultItineraryID = "family-weekend"

// Modifier backends.
const (
	ModifierNone    = "none"
	ModifierPlanner = "planner"
	ModifierHTTP    = "http"
)

// Config is the root of itinerary.yaml.
type Config struct {
	LocalDB     string         `yaml:"local_db"`
	ItineraryID string         `yaml:"itinerary_id"`
	Remote      RemoteConfig   `yaml:"remote"`
	Server      ServerConfig   `yaml:"server"`
	Modifier    ModifierConfig `yaml:"modifier"`
	Tracing     TracingConfig  `yaml:"tracing"`
	Log         LogConfig      `yaml:"log"`
}

// RemoteConfig selects the store of record. URL and DB are mutually
// exclusive; with neither set the local database is its own store of record.
type RemoteConfig struct {
	URL     string        `yaml:"url,omitempty"`
	DB      string        `yaml:"db,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig configures `itinerary serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// DB is the store of record the server owns. Empty means local_db.
	DB string `yaml:"db,omitempty"`
}

// ModifierConfig selects the modification engine.
type ModifierConfig struct {
	Kind      string        `yaml:"kind"`
	Endpoint  string        `yaml:"endpoint,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
	Playbooks string        `yaml:"playbooks,omitempty"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LogConfig struct {
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LocalDB:     "itinerary.db",
		ItineraryID: DefaultItineraryID,
		Remote:      RemoteConfig{Timeout: 10 * time.Second},
		Server:      ServerConfig{Addr: ":8787"},
		Modifier:    ModifierConfig{Kind: ModifierPlanner, Timeout: 30 * time.Second},
		Tracing:     TracingConfig{ServiceName: "itinerary", Exporter: "stdout", SampleRatio: 1},
		Log:         LogConfig{Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path reads DefaultPath if it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ITINERARY_LOCAL_DB"); v != "" {
		cfg.LocalDB = v
	}
	if v := os.Getenv("ITINERARY_REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
		cfg.Remote.DB = ""
	}
	if v := os.Getenv("ITINERARY_ID"); v != "" {
		cfg.ItineraryID = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.LocalDB == "" {
		return errors.New("config: local_db is required")
	}
	if c.ItineraryID == "" {
		return errors.New("config: itinerary_id is required")
	}
	if c.Remote.URL != "" && c.Remote.DB != "" {
		return errors.New("config: remote.url and remote.db are mutually exclusive")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("config: remote.timeout must be positive, got %s", c.Remote.Timeout)
	}

	switch c.Modifier.Kind {
	case ModifierNone, ModifierPlanner:
	case ModifierHTTP:
		if c.Modifier.Endpoint == "" {
			return errors.New("config: modifier.endpoint is required when modifier.kind is http")
		}
	default:
		return fmt.Errorf("config: unknown modifier.kind %q (want none, planner or http)", c.Modifier.Kind)
	}
	if c.Modifier.Timeout <= 0 {
		return fmt.Errorf("config: modifier.timeout must be positive, got %s", c.Modifier.Timeout)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			return fmt.Errorf("config: unknown tracing.exporter %q (want stdout or otlp)", c.Tracing.Exporter)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("config: tracing.sample_ratio must be within [0, 1], got %g", c.Tracing.SampleRatio)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// ServerDB returns the database path `itinerary serve` should own.
func (c Config) ServerDB() string {
	if c.Server.DB != "" {
		return c.Server.DB
	}
	return c.LocalDB
}
