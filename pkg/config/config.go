// Package config loads server settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration
type Config struct {
	Debug bool   `yaml:"debug"`
	Port  string `yaml:"port"`

	// FrontendOrigin restricts websocket upgrades; empty accepts any origin
	FrontendOrigin string   `yaml:"frontend_origin"`
	APIKeys        []string `yaml:"api_keys"`
	JWTSecret      string   `yaml:"jwt_secret"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Room    RoomConfig    `yaml:"room"`
	Archive ArchiveConfig `yaml:"archive"`
}

// RoomConfig tunes sessions, clocks and the collector
type RoomConfig struct {
	InitialTime  time.Duration `yaml:"initial_time"`
	Increment    time.Duration `yaml:"increment"`
	MinInitial   time.Duration `yaml:"min_initial"`
	MaxInitial   time.Duration `yaml:"max_initial"`
	MaxIncrement time.Duration `yaml:"max_increment"`

	TickInterval time.Duration `yaml:"tick_interval"`
	SyncEvery    int           `yaml:"sync_every"`

	SweepInterval time.Duration `yaml:"sweep_interval"`
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	FinishedTTL   time.Duration `yaml:"finished_ttl"`

	ChatCap       int           `yaml:"chat_cap"`
	ChatMaxLength int           `yaml:"chat_max_length"`
	ChatInterval  time.Duration `yaml:"chat_interval"`
}

// ArchiveConfig controls the finished-game archive in Redis
type ArchiveConfig struct {
	Key        string        `yaml:"key"`
	MaxEntries int64         `yaml:"max_entries"`
	ResultTTL  time.Duration `yaml:"result_ttl"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Port: "8080",
		Room: RoomConfig{
			InitialTime:   300 * time.Second,
			Increment:     0,
			MinInitial:    time.Second,
			MaxInitial:    3 * time.Hour,
			MaxIncrement:  time.Minute,
			TickInterval:  time.Second,
			SyncEvery:     1,
			SweepInterval: 60 * time.Second,
			IdleTTL:       5 * time.Minute,
			FinishedTTL:   30 * time.Minute,
			ChatCap:       50,
			ChatMaxLength: 1000,
			ChatInterval:  600 * time.Millisecond,
		},
		Archive: ArchiveConfig{
			Key:        "chessroom:results",
			MaxEntries: 500,
			ResultTTL:  24 * time.Hour,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
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

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.FrontendOrigin = getEnv("FRONTEND_ORIGIN", c.FrontendOrigin)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.Archive.Key = getEnv("ARCHIVE_KEY", c.Archive.Key)

	if v := os.Getenv("API_KEYS"); v != "" {
		c.APIKeys = splitList(v)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	collect(envBool("DEBUG", &c.Debug))
	collect(envSeconds("ROOM_INITIAL_SECONDS", &c.Room.InitialTime))
	collect(envSeconds("ROOM_INCREMENT_SECONDS", &c.Room.Increment))
	collect(envDuration("ROOM_TICK_INTERVAL", &c.Room.TickInterval))
	collect(envDuration("ROOM_SWEEP_INTERVAL", &c.Room.SweepInterval))
	collect(envDuration("ROOM_IDLE_TTL", &c.Room.IdleTTL))
	collect(envDuration("ROOM_FINISHED_TTL", &c.Room.FinishedTTL))
	collect(envDuration("CHAT_INTERVAL", &c.Room.ChatInterval))
	collect(envInt("CHAT_MAX_LENGTH", &c.Room.ChatMaxLength))
	collect(envInt("CHAT_CAP", &c.Room.ChatCap))
	collect(envDuration("ARCHIVE_RESULT_TTL", &c.Archive.ResultTTL))

	return errors.Join(errs...)
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	r := c.Room
	if r.MinInitial <= 0 || r.MaxInitial < r.MinInitial {
		errs = append(errs, fmt.Errorf("invalid initial time bounds %s..%s", r.MinInitial, r.MaxInitial))
	}
	if r.InitialTime < r.MinInitial || r.InitialTime > r.MaxInitial {
		errs = append(errs, fmt.Errorf("initial time %s outside %s..%s", r.InitialTime, r.MinInitial, r.MaxInitial))
	}
	if r.Increment < 0 || r.Increment > r.MaxIncrement {
		errs = append(errs, fmt.Errorf("increment %s outside 0..%s", r.Increment, r.MaxIncrement))
	}
	if r.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if r.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if r.IdleTTL <= 0 || r.FinishedTTL <= 0 {
		errs = append(errs, errors.New("room ttls must be positive"))
	}
	if r.ChatCap <= 0 {
		errs = append(errs, errors.New("chat cap must be positive"))
	}
	if r.SyncEvery <= 0 {
		errs = append(errs, errors.New("sync_every must be positive"))
	}

	return errors.Join(errs...)
}

// ClampTimeControl fits a requested time control into the configured bounds.
// Zero values fall back to the defaults.
func (r RoomConfig) ClampTimeControl(initial, increment time.Duration) (time.Duration, time.Duration) {
	if initial <= 0 {
		initial = r.InitialTime
	}
	initial = min(max(initial, r.MinInitial), r.MaxInitial)

	if increment < 0 {
		increment = r.Increment
	}
	increment = min(increment, r.MaxIncrement)
	return initial, increment
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
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

func envBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}

func envSeconds(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = time.Duration(v) * time.Second
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = v
	return nil
}
