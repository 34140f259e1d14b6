package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the optional YAML config file. Environment variables win
// over anything in it.
const FileEnv = "TRACKER_CONFIG_FILE"

type Config struct {
	Addr        string `yaml:"addr" env:"TRACKER_ADDR"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"TRACKER_AUTO_MIGRATE"`
	SeedFile    string `yaml:"seed_file" env:"TRACKER_SEED_FILE"`

	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`

	CORSOrigins     []string `yaml:"cors_origins" env:"TRACKER_CORS_ORIGINS" envSeparator:","`
	DisplaysEnabled bool     `yaml:"displays_enabled" env:"TRACKER_DISPLAYS_ENABLED"`
	// DisplayURL is the display page address; {id} is replaced with the
	// encounter id.
	DisplayURL string `yaml:"display_url" env:"TRACKER_DISPLAY_URL"`

	TransitionDelay time.Duration `yaml:"transition_delay" env:"TRACKER_TRANSITION_DELAY"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"TRACKER_RETRY_DELAY"`
	PollInterval    time.Duration `yaml:"poll_interval" env:"TRACKER_POLL_INTERVAL"`
	LoadTimeout     time.Duration `yaml:"load_timeout" env:"TRACKER_LOAD_TIMEOUT"`

	// ServerURL is where cmd/display finds the server.
	ServerURL string `yaml:"server_url" env:"TRACKER_SERVER_URL"`
}

func Defaults() Config {
	return Config{
		Addr:            ":8080",
		LogFormat:       "json",
		LogLevel:        "info",
		DisplaysEnabled: true,
		DisplayURL:      "/encounter-display/{id}",
		TransitionDelay: 350 * time.Millisecond,
		RetryDelay:      500 * time.Millisecond,
		PollInterval:    time.Second,
		LoadTimeout:     10 * time.Second,
		ServerURL:       "http://localhost:8080",
	}
}

// Load reads .env (if present) into the process environment, then builds
// the config from defaults, the YAML file and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse(nil)
}

// Parse builds the config from environ, or from the process environment
// when environ is nil.
func Parse(environ map[string]string) (Config, error) {
	cfg := Defaults()

	path, ok := environ[FileEnv]
	if environ == nil {
		path, ok = os.LookupEnv(FileEnv)
	}
	if ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr is empty")
	}
	if c.TransitionDelay < 0 {
		problems = append(problems, "transition_delay is negative")
	}
	if c.RetryDelay < 0 {
		problems = append(problems, "retry_delay is negative")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}
	if !strings.Contains(c.DisplayURL, "{id}") {
		problems = append(problems, "display_url must contain {id}")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DisplayPath is the display page address for an encounter.
func (c Config) DisplayPath(encounterID string) string {
	return strings.ReplaceAll(c.DisplayURL, "{id}", encounterID)
}
