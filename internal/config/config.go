// Package config resolves the desk client's settings from defaults, an optional YAML file and
// the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ResyncReconcile = "reconcile"
	ResyncRefetch   = "refetch"
)

type Config struct {
	APIURL        string
	StatePath     string
	HTTPTimeout   time.Duration
	RPS           int
	MaxRetries    int
	CatalogMaxAge time.Duration
	Resync        string
}

// fileConfig mirrors Config in the YAML file. Durations use time.ParseDuration syntax.
type fileConfig struct {
	APIURL        string `yaml:"api_url"`
	StatePath     string `yaml:"state_path"`
	HTTPTimeout   string `yaml:"http_timeout"`
	RPS           *int   `yaml:"rps"`
	MaxRetries    *int   `yaml:"max_retries"`
	CatalogMaxAge string `yaml:"catalog_max_age"`
	Resync        string `yaml:"resync"`
}

func Default() Config {
	return Config{
		APIURL:        "http://localhost:8080",
		StatePath:     defaultStatePath(),
		HTTPTimeout:   10 * time.Second,
		RPS:           10,
		MaxRetries:    2,
		CatalogMaxAge: 30 * time.Second,
		Resync:        ResyncReconcile,
	}
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".librarydesk", "state.db")
	}
	return filepath.Join(home, ".librarydesk", "state.db")
}

// LoadEnvFiles reads .env and .env.local from the working directory. Variables already set in
// the environment win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// Load builds the configuration. DESK_CONFIG names an optional YAML file.
func Load() (Config, error) {
	LoadEnvFiles()

	cfg := Default()
	if path := os.Getenv("DESK_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.APIURL != "" {
		c.APIURL = fc.APIURL
	}
	if fc.StatePath != "" {
		c.StatePath = fc.StatePath
	}
	if fc.RPS != nil {
		c.RPS = *fc.RPS
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.Resync != "" {
		c.Resync = fc.Resync
	}
	if err := parseDuration("http_timeout", fc.HTTPTimeout, &c.HTTPTimeout); err != nil {
		return err
	}
	return parseDuration("catalog_max_age", fc.CatalogMaxAge, &c.CatalogMaxAge)
}

func (c *Config) mergeEnv() error {
	c.APIURL = getEnv("DESK_API_URL", c.APIURL)
	c.StatePath = getEnv("DESK_STATE_PATH", c.StatePath)
	c.Resync = getEnv("DESK_RESYNC", c.Resync)

	if err := parseDuration("DESK_HTTP_TIMEOUT", os.Getenv("DESK_HTTP_TIMEOUT"), &c.HTTPTimeout); err != nil {
		return err
	}
	if err := parseDuration("DESK_CATALOG_MAX_AGE", os.Getenv("DESK_CATALOG_MAX_AGE"), &c.CatalogMaxAge); err != nil {
		return err
	}
	if err := parseInt("DESK_RPS", os.Getenv("DESK_RPS"), &c.RPS); err != nil {
		return err
	}
	return parseInt("DESK_MAX_RETRIES", os.Getenv("DESK_MAX_RETRIES"), &c.MaxRetries)
}

func (c *Config) validate() error {
	if c.Resync != ResyncReconcile && c.Resync != ResyncRefetch {
		return fmt.Errorf("resync must be %q or %q, got %q", ResyncReconcile, ResyncRefetch, c.Resync)
	}
	if c.RPS <= 0 {
		return fmt.Errorf("rps must be positive, got %d", c.RPS)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	*dst = d
	return nil
}

func parseInt(name, raw string, dst *int) error {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	*dst = n
	return nil
}
