// Package config loads server configuration from the environment.
//
// An optional .env file in the working directory is read first (values
// already set in the environment win), then envconfig fills Config from the
// variables named in the struct tags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the complete server configuration.
type Config struct {
	Server    Server
	Database  Database
	Exec      Exec
	Docker    Docker
	Auth      Auth
	RateLimit RateLimit
	Autosave  Autosave
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

type Server struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	TemplateDir string `envconfig:"TEMPLATE_DIR" default:"web/templates"`
	StaticDir   string `envconfig:"STATIC_DIR" default:"web/static"`
}

type Database struct {
	// Path of the SQLite file; ":memory:" keeps everything in RAM.
	Path string `envconfig:"DB_PATH" default:"data/playground.db"`
}

type Exec struct {
	Timeout        time.Duration `envconfig:"EXEC_TIMEOUT" default:"5s"`
	MaxConcurrent  int           `envconfig:"EXEC_MAX_CONCURRENT" default:"4"`
	MaxOutputBytes int           `envconfig:"EXEC_MAX_OUTPUT_BYTES" default:"1048576"`
	MaxCallStack   int           `envconfig:"JS_MAX_CALL_STACK" default:"1024"`
}

// Docker configures the optional "node" language.
type Docker struct {
	Enabled  bool    `envconfig:"DOCKER_ENABLED" default:"false"`
	Image    string  `envconfig:"DOCKER_IMAGE" default:"node:22-alpine"`
	PoolSize int     `envconfig:"DOCKER_POOL_SIZE" default:"2"`
	MemoryMB int64   `envconfig:"DOCKER_MEMORY_MB" default:"128"`
	CPUs     float64 `envconfig:"DOCKER_CPUS" default:"0.5"`
}

// Auth configures the session cookie and the optional GitHub login.
// Login is enabled only when both GitHub credentials are set.
type Auth struct {
	SessionSecret      string `envconfig:"SESSION_SECRET"`
	GitHubClientID     string `envconfig:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `envconfig:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `envconfig:"GITHUB_CALLBACK_URL"`
}

// GitHubEnabled reports whether both OAuth credentials are present.
func (a Auth) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type RateLimit struct {
	Enabled bool    `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RPS     float64 `envconfig:"RATE_LIMIT_RPS" default:"2"`
	Burst   int     `envconfig:"RATE_LIMIT_BURST" default:"5"`
}

type Autosave struct {
	Delay time.Duration `envconfig:"AUTOSAVE_DELAY" default:"1s"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.Auth.GitHubCallbackURL == "" {
		cfg.Auth.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would make the server misbehave.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "PORT must be in 1..65535, got %d", c.Server.Port)
	check(c.Database.Path != "", "DB_PATH must not be empty")
	check(c.Exec.Timeout > 0, "EXEC_TIMEOUT must be positive, got %s", c.Exec.Timeout)
	check(c.Exec.MaxConcurrent > 0, "EXEC_MAX_CONCURRENT must be positive, got %d", c.Exec.MaxConcurrent)
	check(c.Exec.MaxOutputBytes > 0, "EXEC_MAX_OUTPUT_BYTES must be positive, got %d", c.Exec.MaxOutputBytes)
	check(c.Exec.MaxCallStack > 0, "JS_MAX_CALL_STACK must be positive, got %d", c.Exec.MaxCallStack)
	check(c.Autosave.Delay > 0, "AUTOSAVE_DELAY must be positive, got %s", c.Autosave.Delay)
	if c.Docker.Enabled {
		check(c.Docker.Image != "", "DOCKER_IMAGE must not be empty")
		check(c.Docker.PoolSize > 0, "DOCKER_POOL_SIZE must be positive, got %d", c.Docker.PoolSize)
		check(c.Docker.MemoryMB > 0, "DOCKER_MEMORY_MB must be positive, got %d", c.Docker.MemoryMB)
		check(c.Docker.CPUs > 0, "DOCKER_CPUS must be positive, got %g", c.Docker.CPUs)
	}
	if c.RateLimit.Enabled {
		check(c.RateLimit.RPS > 0, "RATE_LIMIT_RPS must be positive, got %g", c.RateLimit.RPS)
		check(c.RateLimit.Burst > 0, "RATE_LIMIT_BURST must be positive, got %d", c.RateLimit.Burst)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps LOG_LEVEL to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
}
