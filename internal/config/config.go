// Package config loads service settings from .env, an optional YAML file and
// the process environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Geocode   GeocodeConfig   `yaml:"geocode"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	AllowOrigins []string      `yaml:"allow_origins"`
	RateRPS      float64       `yaml:"rate_rps"`
	RateBurst    int           `yaml:"rate_burst"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type AuthConfig struct {
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmac_secret"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
	// GeocodeKey authenticates external geocoding workers on the job endpoints.
	GeocodeKey string `yaml:"geocode_key"`
}

type GeocodeConfig struct {
	Providers         []string      `yaml:"providers"`
	NominatimURL      string        `yaml:"nominatim_url"`
	NominatimEmail    string        `yaml:"nominatim_email"`
	UserAgent         string        `yaml:"user_agent"`
	NominatimMinDelay time.Duration `yaml:"nominatim_min_delay"`
	PhotonURL         string        `yaml:"photon_url"`
	GoogleAPIKey      string        `yaml:"google_api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	BatchSize         int           `yaml:"batch_size"`
	Delay             time.Duration `yaml:"delay"`
	// Schedule is a cron spec for the embedded batch worker; empty disables it.
	Schedule string `yaml:"schedule"`
}

type OptimizerConfig struct {
	OSRMURL string        `yaml:"osrm_url"`
	Profile string        `yaml:"profile"`
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Config {
	return Config{
		Server:   ServerConfig{Port: "8080", AllowOrigins: []string{"*"}, RateBurst: 20, ShutdownWait: 15 * time.Second},
		Database: DatabaseConfig{Migrate: true},
		Redis:    RedisConfig{CacheTTL: 30 * 24 * time.Hour},
		Auth:     AuthConfig{Mode: "dev"},
		Geocode: GeocodeConfig{
			Providers:         []string{"nominatim", "photon", "google"},
			NominatimMinDelay: time.Second,
			UserAgent:         "fieldcrm-geocoder/1.0",
			Timeout:           10 * time.Second,
			BatchSize:         20,
			Delay:             time.Second,
		},
		Optimizer: OptimizerConfig{Profile: "driving", Timeout: 10 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env (missing is fine), then CONFIG_FILE if set, then environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.AllowOrigins = getEnvList("ALLOW_ORIGINS", c.Server.AllowOrigins)
	c.Server.RateRPS = getEnvFloat("RATE_RPS", c.Server.RateRPS)
	c.Server.RateBurst = getEnvInt("RATE_BURST", c.Server.RateBurst)
	c.Server.ShutdownWait = getEnvDuration("SHUTDOWN_WAIT", c.Server.ShutdownWait)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Migrate = getEnvBool("DB_MIGRATE", c.Database.Migrate)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.CacheTTL = getEnvDuration("GEOCODE_CACHE_TTL", c.Redis.CacheTTL)

	c.Auth.Mode = strings.ToLower(getEnv("AUTH_MODE", c.Auth.Mode))
	c.Auth.HMACSecret = getEnv("AUTH_HMAC_SECRET", c.Auth.HMACSecret)
	c.Auth.Issuer = getEnv("AUTH_ISSUER", c.Auth.Issuer)
	c.Auth.Audience = getEnv("AUTH_AUDIENCE", c.Auth.Audience)
	c.Auth.GeocodeKey = getEnv("GEOCODE_WORKER_KEY", c.Auth.GeocodeKey)

	g := &c.Geocode
	g.Providers = getEnvList("GEOCODE_PROVIDERS", g.Providers)
	g.NominatimURL = getEnv("GEOCODE_NOMINATIM_URL", g.NominatimURL)
	g.NominatimEmail = getEnv("GEOCODE_NOMINATIM_EMAIL", g.NominatimEmail)
	g.UserAgent = getEnv("GEOCODE_USER_AGENT", g.UserAgent)
	g.NominatimMinDelay = getEnvDuration("GEOCODE_NOMINATIM_MIN_DELAY", g.NominatimMinDelay)
	g.PhotonURL = getEnv("GEOCODE_PHOTON_URL", g.PhotonURL)
	g.GoogleAPIKey = getEnv("GEOCODE_GOOGLE_API_KEY", g.GoogleAPIKey)
	g.Timeout = getEnvDuration("GEOCODE_TIMEOUT", g.Timeout)
	g.BatchSize = getEnvInt("GEOCODE_BATCH_SIZE", g.BatchSize)
	g.Delay = getEnvDuration("GEOCODE_DELAY", g.Delay)
	g.Schedule = getEnv("GEOCODE_SCHEDULE", g.Schedule)

	c.Optimizer.OSRMURL = getEnv("OSRM_URL", c.Optimizer.OSRMURL)
	c.Optimizer.Profile = getEnv("OSRM_PROFILE", c.Optimizer.Profile)
	c.Optimizer.Timeout = getEnvDuration("OSRM_TIMEOUT", c.Optimizer.Timeout)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.Auth.Mode {
	case "dev", "":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("config: AUTH_MODE=hmac requires AUTH_HMAC_SECRET")
		}
	default:
		return fmt.Errorf("config: unknown AUTH_MODE %q", c.Auth.Mode)
	}
	for _, p := range c.Geocode.Providers {
		switch p {
		case "nominatim", "photon", "google":
		default:
			return fmt.Errorf("config: unknown geocode provider %q", p)
		}
	}
	if c.Geocode.BatchSize < 0 || c.Geocode.Delay < 0 {
		return fmt.Errorf("config: geocode batch size and delay must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return def
}

// getEnvDuration accepts Go durations ("1500ms") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
