// Package config loads gatekeeper configuration from the environment.
//
// Values are read with github.com/caarlos0/env. A .env file in the working
// directory is loaded first when present.
package config

import (
	"os"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/layer-3/gatekeeper/internal/logs"
)

const (
	EnvLocal      = "local"
	EnvDev        = "dev"
	EnvProduction = "production"

	maxLeeway = 2 * time.Minute
)

// Config is the process configuration
type Config struct {
	// AppEnv selects environment specific behaviour. Rejection reasons are
	// only exposed to clients when running locally.
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":9000"`

	Log      LogConfig      `envPrefix:"LOG_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Cookie   CookieConfig   `envPrefix:"COOKIE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Events   EventsConfig   `envPrefix:"EVENTS_"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`
}

// AuthConfig holds credential secrets and session policy
type AuthConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"24h"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"720h"`
	Leeway        time.Duration `env:"LEEWAY" envDefault:"0s"`
	Issuer        string        `env:"ISSUER" envDefault:"gatekeeper"`
	ReuseGrace    time.Duration `env:"REUSE_GRACE" envDefault:"10s"`
	LookupTimeout time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"3s"`
}

type CookieConfig struct {
	Domain      string `env:"DOMAIN"`
	AccessName  string `env:"ACCESS_NAME" envDefault:"token"`
	RefreshName string `env:"REFRESH_NAME" envDefault:"refreshToken"`
}

// RedisConfig enables the shared revocation store and event stream. Empty URL keeps both in memory.
type RedisConfig struct {
	URL string `env:"URL"`
}

// DatabaseConfig enables the postgres identity store. Empty URL keeps identities in memory.
type DatabaseConfig struct {
	URL    string `env:"URL"`
	Schema string `env:"SCHEMA" envDefault:"public"`
}

type EventsConfig struct {
	TopicPrefix string `env:"TOPIC_PREFIX" envDefault:"gatekeeper"`
}

// Load reads .env when present, then the process environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, errors.Wrap(err, "failed to load .env file")
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to parse config")
	}
	return cfg, cfg.Validate()
}

// Parse builds a Config from an explicit environment
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return cfg, errors.Wrap(err, "failed to parse config")
	}
	return cfg, cfg.Validate()
}

// Validate checks values env tags cannot express
func (c Config) Validate() error {
	switch c.AppEnv {
	case EnvLocal, EnvDev, EnvProduction:
	default:
		return errors.Errorf("APP_ENV must be one of local, dev, production, got %q", c.AppEnv)
	}

	if _, err := logs.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "LOG_LEVEL")
	}

	a := c.Auth
	if a.AccessSecret == "" || a.RefreshSecret == "" {
		return errors.New("AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET are required")
	}
	if a.AccessSecret == a.RefreshSecret {
		return errors.New("AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must differ")
	}
	if a.AccessTTL <= 0 || a.RefreshTTL < a.AccessTTL {
		return errors.New("AUTH_REFRESH_TTL must be at least AUTH_ACCESS_TTL, both positive")
	}
	if a.Leeway < 0 || a.Leeway > maxLeeway {
		return errors.Errorf("AUTH_LEEWAY must be between 0 and %s", maxLeeway)
	}
	if a.ReuseGrace < 0 {
		return errors.New("AUTH_REUSE_GRACE must not be negative")
	}
	if a.LookupTimeout <= 0 {
		return errors.New("AUTH_LOOKUP_TIMEOUT must be positive")
	}

	if c.Cookie.AccessName == "" || c.Cookie.RefreshName == "" || c.Cookie.AccessName == c.Cookie.RefreshName {
		return errors.New("COOKIE_ACCESS_NAME and COOKIE_REFRESH_NAME must be set and distinct")
	}

	return nil
}

// IsLocal reports whether rejection detail may be shown to clients
func (c Config) IsLocal() bool {
	return c.AppEnv == EnvLocal
}
