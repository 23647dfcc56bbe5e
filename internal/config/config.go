// Package config loads service settings from the environment, an optional
// YAML file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	AuthModeGoogle = "google"
	AuthModeHMAC   = "hmac"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultPrompt asks the model for a structured verdict on the branded scene.
const DefaultPrompt = `Determine if the image shows a person drinking a Heineken beer.
Return in structured JSON an object with a "reasoning" list of your reasoning steps
and an "answer" boolean conclusion.`

// Config holds all configuration for the service.
type Config struct {
	Port            string        `yaml:"port" env:"PORT" env-default:"8080"`
	GinMode         string        `yaml:"gin_mode" env:"GIN_MODE" env-default:"release"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"120s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	CORSOrigins     []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	GRPCHealthAddr  string        `yaml:"grpc_health_addr" env:"GRPC_HEALTH_ADDR" env-default:""`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Inference InferenceConfig `yaml:"inference"`
}

// DatabaseConfig selects the record store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DATABASE_DRIVER" env-default:"sqlite"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:"history.db"`
}

// RedisConfig configures the optional history cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"history_cache_ttl" env:"HISTORY_CACHE_TTL" env-default:"1m"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Mode           string        `yaml:"mode" env:"AUTH_MODE" env-default:"google"`
	GoogleClientID string        `yaml:"google_client_id" env:"GOOGLE_CLIENT_ID" env-default:""`
	GoogleJWKSURL  string        `yaml:"google_jwks_url" env:"GOOGLE_JWKS_URL" env-default:"https://www.googleapis.com/oauth2/v3/certs"`
	JWTSecret      string        `yaml:"-" env:"JWT_SECRET"`
	Timeout        time.Duration `yaml:"timeout" env:"IDENTITY_TIMEOUT" env-default:"5s"`
}

// FetchConfig bounds downloads of caller supplied image URLs.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout" env:"FETCH_TIMEOUT" env-default:"15s"`
	MaxBytes int64         `yaml:"max_bytes" env:"MAX_IMAGE_BYTES" env-default:"20971520"`
}

// InferenceConfig configures the multimodal provider.
type InferenceConfig struct {
	APIKey     string        `yaml:"-" env:"GOOGLE_API_KEY"`
	Model      string        `yaml:"model" env:"INFERENCE_MODEL" env-default:"gemini-2.5-flash"`
	Prompt     string        `yaml:"prompt" env:"INFERENCE_PROMPT"`
	StagingDir string        `yaml:"staging_dir" env:"STAGING_DIR" env-default:""`
	Timeout    time.Duration `yaml:"timeout" env:"INFERENCE_TIMEOUT" env-default:"90s"`
}

// Load reads configuration. A .env file in the working directory is applied
// first when present; CONFIG_PATH names an optional YAML file. Environment
// variables always win over YAML values.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.GinMode = strings.ToLower(strings.TrimSpace(c.GinMode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	if strings.TrimSpace(c.Inference.Prompt) == "" {
		c.Inference.Prompt = DefaultPrompt
	}
	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODE must be one of debug, release, test (got %q)", c.GinMode)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres (got %q)", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	switch c.Auth.Mode {
	case AuthModeGoogle:
		if c.Auth.GoogleJWKSURL == "" {
			return errors.New("GOOGLE_JWKS_URL must not be empty")
		}
	case AuthModeHMAC:
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			return errors.New("JWT_SECRET is required when AUTH_MODE=hmac")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be google or hmac (got %q)", c.Auth.Mode)
	}
	if c.Fetch.MaxBytes <= 0 {
		return errors.New("MAX_IMAGE_BYTES must be positive")
	}
	if c.Auth.Timeout <= 0 || c.Fetch.Timeout <= 0 || c.Inference.Timeout <= 0 {
		return errors.New("step timeouts must be positive")
	}
	if strings.TrimSpace(c.Inference.Model) == "" {
		return errors.New("INFERENCE_MODEL must not be empty")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
