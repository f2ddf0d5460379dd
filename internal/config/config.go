// Package config loads the Kassandra configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"KASSANDRA_HOST"`
	Port            int           `yaml:"port" env:"KASSANDRA_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"KASSANDRA_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"KASSANDRA_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"KASSANDRA_SHUTDOWN_TIMEOUT"`
	AllowedOrigins  string        `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS    int           `yaml:"rate_limit_rps" env:"KASSANDRA_RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"KASSANDRA_RATE_LIMIT_BURST"`
}

// DatabaseConfig controls the PostgreSQL connection. When DSN is empty the
// application falls back to the in-memory store.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"` // seconds
	Migrate         bool   `yaml:"migrate" env:"DATABASE_MIGRATE"`
}

// RedisConfig controls the optional session cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// AuthConfig controls token issuing.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"JWT_TOKEN_TTL"`
	Issuer    string        `yaml:"issuer" env:"JWT_ISSUER"`
}

// AssistantConfig controls the LLM chat assistant.
type AssistantConfig struct {
	Enabled bool   `yaml:"enabled" env:"ASSISTANT_ENABLED"`
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Model   string `yaml:"model" env:"ASSISTANT_MODEL"`
	// MaxToolRounds bounds the tool-call loop per chat request.
	MaxToolRounds int `yaml:"max_tool_rounds" env:"ASSISTANT_MAX_TOOL_ROUNDS"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Assistant AssistantConfig `yaml:"assistant"`
	Logging   logger.Config   `yaml:"logging"`
}

// Origins returns the CORS allowlist as a slice. Empty means any origin.
func (s ServerConfig) Origins() []string {
	if strings.TrimSpace(s.AllowedOrigins) == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(s.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// Default returns the baseline configuration applied before file and
// environment overrides.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			Migrate:         true,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "kassandra",
		},
		Assistant: AssistantConfig{
			Model:         "gpt-4o-mini",
			MaxToolRounds: 8,
		},
		Logging: logger.Config{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load reads the config file named by KASSANDRA_CONFIG (default
// config/kassandra.yaml), then applies environment overrides. A missing file
// is not an error; the defaults plus environment are used.
func Load() (*Config, error) {
	path := os.Getenv("KASSANDRA_CONFIG")
	if path == "" {
		path = "config/kassandra.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// config file is optional
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required (set JWT_SECRET)")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Assistant.Enabled && strings.TrimSpace(c.Assistant.APIKey) == "" {
		return fmt.Errorf("assistant.api_key is required when the assistant is enabled")
	}
	return nil
}
